package export

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/employees"
	"clinic/internal/domain/payconfig"
	"clinic/internal/domain/payroll"
)

var (
	exportedAt = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)
	clerk      = audit.Actor{ID: "user-clerk", Name: "Sam Clerk"}
)

func taxConfig() payconfig.TaxConfig {
	return payconfig.TaxConfig{
		ID:                 "cfg-ca",
		Jurisdiction:       "CA",
		FederalRate:        decimal.RequireFromString("0.12"),
		StateRate:          decimal.RequireFromString("0.05"),
		SocialSecurityRate: decimal.RequireFromString("0.062"),
		MedicareRate:       decimal.RequireFromString("0.0145"),
		UnemploymentRate:   decimal.RequireFromString("0.006"),
		Exemptions: []payconfig.Exemption{
			{Frequency: payroll.FrequencyBiweekly, Amount: decimal.RequireFromString("100")},
		},
	}
}

func achConfig() payconfig.ACHConfig {
	return payconfig.ACHConfig{
		CompanyName:              "Lakeside Clinic",
		CompanyID:                "1234567890",
		ImmediateDestination:     "021000021",
		ImmediateDestinationName: "JPMORGAN CHASE",
		ImmediateOrigin:          "1234567890",
		ImmediateOriginName:      "LAKESIDE CLINIC",
		OriginatingDFI:           "02100002",
		EntryDescription:         "PAYROLL",
	}
}

// postedDetail returns a posted, tax-completed run with records for E-1003, E-1001, E-1002 in that order.
func postedDetail() payroll.RunDetail {
	period := payroll.PayPeriod{
		ID:        "period-1",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC),
		PayDate:   time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
		Frequency: payroll.FrequencyBiweekly,
	}
	computed := time.Date(2025, 1, 15, 9, 5, 0, 0, time.UTC)
	run := payroll.Run{
		ID:            "7f0c2a54-1b7e-4a0e-9a55-3f8f00d7c111",
		PeriodID:      period.ID,
		Status:        payroll.RunStatusPosted,
		TaxStatus:     payroll.TaxStatusCompleted,
		TaxComputedAt: &computed,
	}
	pct := decimal.RequireFromString("5")
	inputs := []payroll.Record{
		{EmployeeID: "E-1003", HourlyRate: decimal.RequireFromString("19.99"), RegularHours: decimal.RequireFromString("64")},
		{
			EmployeeID:    "E-1001",
			HourlyRate:    decimal.RequireFromString("42.50"),
			RegularHours:  decimal.RequireFromString("80"),
			OvertimeHours: decimal.RequireFromString("6.5"),
			BonusPay:      decimal.RequireFromString("150"),
			Deductions: []payroll.Deduction{
				{Kind: payroll.DeductionRetirement401k, Percentage: &pct},
				{Kind: payroll.DeductionUnionDues, Amount: decimal.RequireFromString("25")},
			},
		},
		{
			EmployeeID:   "E-1002",
			HourlyRate:   decimal.RequireFromString("31.17"),
			RegularHours: decimal.RequireFromString("76.25"),
			Deductions: []payroll.Deduction{
				{Kind: payroll.DeductionPreTaxBenefit, Amount: decimal.RequireFromString("18.33")},
			},
		},
	}
	records := make([]payroll.Record, 0, len(inputs))
	for _, in := range inputs {
		in.RunID = run.ID
		records = append(records, payroll.ComputeRecord(in, taxConfig(), period.Frequency, computed))
	}
	return payroll.RunDetail{Run: run, Period: period, Records: records}
}

func directory() map[string]employees.Employee {
	return map[string]employees.Employee{
		"E-1001": {ID: "E-1001", Name: "Avery Nurse", Jurisdiction: "CA"},
		"E-1002": {ID: "E-1002", Name: "Blake Tech", Jurisdiction: "CA"},
		"E-1003": {ID: "E-1003", Name: "Casey Front", Jurisdiction: "CA"},
	}
}

func banks() map[string]payconfig.BankInfo {
	return map[string]payconfig.BankInfo{
		"E-1001": {EmployeeID: "E-1001", RoutingNumber: "011000015", AccountNumber: "000123456789", AccountType: payconfig.AccountTypeChecking, Active: true},
		"E-1002": {EmployeeID: "E-1002", RoutingNumber: "121000358", AccountNumber: "98765432", AccountType: payconfig.AccountTypeSavings, Active: true},
	}
}

type stubRuns struct {
	detail payroll.RunDetail
	err    error
}

func (s *stubRuns) GetRun(_ context.Context, id string) (payroll.RunDetail, error) {
	if s.err != nil {
		return payroll.RunDetail{}, s.err
	}
	if id != s.detail.Run.ID {
		return payroll.RunDetail{}, payroll.ErrRunNotFound
	}
	return s.detail, nil
}

type stubDirectory struct {
	employees map[string]employees.Employee
	err       error
}

func (s *stubDirectory) GetEmployees(_ context.Context, ids []string) (map[string]employees.Employee, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]employees.Employee{}
	for _, id := range ids {
		if emp, ok := s.employees[id]; ok {
			out[id] = emp
		}
	}
	return out, nil
}

type stubBanks struct {
	cfg    payconfig.ACHConfig
	cfgErr error
	infos  map[string]payconfig.BankInfo
	err    error
}

func (s *stubBanks) ACHConfig(context.Context) (payconfig.ACHConfig, error) {
	return s.cfg, s.cfgErr
}

func (s *stubBanks) BankInfo(_ context.Context, ids []string) (map[string]payconfig.BankInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]payconfig.BankInfo{}
	for _, id := range ids {
		if info, ok := s.infos[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}
