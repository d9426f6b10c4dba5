package export

import (
	"sort"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/employees"
	"clinic/internal/domain/payroll"
)

// BuildSnapshot gates on the run state and flattens every record into a Paystub, ordered by employee id.
func BuildSnapshot(detail payroll.RunDetail, directory map[string]employees.Employee) (Snapshot, error) {
	if err := detail.Run.Exportable(); err != nil {
		return Snapshot{}, err
	}
	stubs := make([]Paystub, 0, len(detail.Records))
	for _, rec := range detail.Records {
		if rec.Taxes == nil || rec.NetPay == nil {
			return Snapshot{}, ErrIncompleteRecords
		}
		emp := directory[rec.EmployeeID]
		totals := map[payroll.DeductionKind]decimal.Decimal{}
		for _, kind := range payroll.DeductionKinds {
			totals[kind] = decimal.Zero
		}
		for _, d := range rec.Deductions {
			totals[d.Kind] = totals[d.Kind].Add(d.Amount)
		}
		name := emp.Name
		if name == "" {
			name = rec.EmployeeID
		}
		stubs = append(stubs, Paystub{
			RunID:           detail.Run.ID,
			Period:          detail.Period,
			EmployeeID:      rec.EmployeeID,
			EmployeeName:    name,
			Jurisdiction:    rec.Taxes.Jurisdiction,
			HourlyRate:      rec.HourlyRate,
			RegularHours:    rec.RegularHours,
			OvertimeHours:   rec.OvertimeHours,
			RegularPay:      rec.RegularPay,
			OvertimePay:     rec.OvertimePay,
			BonusPay:        rec.BonusPay,
			GrossPay:        rec.GrossPay,
			Deductions:      rec.Deductions,
			DeductionTotals: totals,
			TotalDeductions: rec.TotalDeductions(),
			Taxes:           *rec.Taxes,
			TotalTaxes:      rec.Taxes.Total(),
			NetPay:          *rec.NetPay,
			Warnings:        rec.Warnings,
		})
	}
	sort.Slice(stubs, func(i, j int) bool { return stubs[i].EmployeeID < stubs[j].EmployeeID })
	return Snapshot{Run: detail.Run, Period: detail.Period, Paystubs: stubs}, nil
}

func employeeIDs(detail payroll.RunDetail) []string {
	ids := make([]string, 0, len(detail.Records))
	for _, rec := range detail.Records {
		ids = append(ids, rec.EmployeeID)
	}
	return ids
}
