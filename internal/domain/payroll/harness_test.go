package payroll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/employees"
	"clinic/internal/domain/notifications"
	"clinic/internal/domain/payconfig"
	"clinic/internal/platform/jobs"
	"clinic/internal/platform/metrics"
)

var (
	Admin = audit.Actor{ID: "user-admin", Name: "Pat Admin"}
	Clerk = audit.Actor{ID: "user-clerk", Name: "Sam Clerk"}
)

type FakeAudit struct {
	mu      sync.Mutex
	Entries []audit.Entry
	Err     error
}

func (f *FakeAudit) Record(_ context.Context, entry audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Entries = append(f.Entries, entry)
	return nil
}

func (f *FakeAudit) Count(_ context.Context, filter audit.Filter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.Entries {
		if filter.ActionPrefix != "" && !strings.HasPrefix(e.Action, filter.ActionPrefix) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		n++
	}
	return n, nil
}

func (f *FakeAudit) ByAction(action string) []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Entry
	for _, e := range f.Entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type FakeNotifier struct {
	mu   sync.Mutex
	Sent []notifications.Input
}

func (f *FakeNotifier) Notify(_ context.Context, in notifications.Input) (notifications.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = append(f.Sent, in)
	return notifications.Notification{Type: in.Type, Severity: in.Severity, Title: in.Title}, nil
}

func (f *FakeNotifier) BySeverity(severity string) []notifications.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifications.Input
	for _, n := range f.Sent {
		if n.Severity == severity {
			out = append(out, n)
		}
	}
	return out
}

type FakeDirectory struct {
	Employees map[string]employees.Employee
	Err       error
}

func (f *FakeDirectory) GetEmployee(_ context.Context, id string) (employees.Employee, error) {
	if f.Err != nil {
		return employees.Employee{}, f.Err
	}
	emp, ok := f.Employees[id]
	if !ok {
		return employees.Employee{}, employees.ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *FakeDirectory) GetEmployees(_ context.Context, ids []string) (map[string]employees.Employee, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	out := map[string]employees.Employee{}
	for _, id := range ids {
		if emp, ok := f.Employees[id]; ok {
			out[id] = emp
		}
	}
	return out, nil
}

// FakeTaxConfigs serves one config per jurisdiction. Gate, when set, blocks each lookup until it is closed or ctx ends.
type FakeTaxConfigs struct {
	mu      sync.Mutex
	Configs map[string]payconfig.TaxConfig
	Err     error
	Gate    chan struct{}
	Started chan struct{}
	Calls   int
}

func (f *FakeTaxConfigs) TaxConfigFor(ctx context.Context, jurisdiction string, _ time.Time) (payconfig.TaxConfig, error) {
	f.mu.Lock()
	f.Calls++
	gate, started, err := f.Gate, f.Started, f.Err
	cfg, ok := f.Configs[jurisdiction]
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return payconfig.TaxConfig{}, ctx.Err()
		}
	}
	if err != nil {
		return payconfig.TaxConfig{}, err
	}
	if !ok {
		return payconfig.TaxConfig{}, payconfig.ErrNoTaxConfig
	}
	return cfg, nil
}

func CATaxConfig() payconfig.TaxConfig {
	return payconfig.TaxConfig{
		ID:                 "00000000-0000-0000-0000-0000000000ca",
		Jurisdiction:       "CA",
		EffectiveDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FederalRate:        decimal.RequireFromString("0.12"),
		StateRate:          decimal.RequireFromString("0.05"),
		SocialSecurityRate: decimal.RequireFromString("0.062"),
		MedicareRate:       decimal.RequireFromString("0.0145"),
		UnemploymentRate:   decimal.RequireFromString("0.006"),
		Exemptions: []payconfig.Exemption{
			{Frequency: FrequencyBiweekly, Amount: decimal.RequireFromString("100")},
		},
	}
}

type Harness struct {
	Service   *Service
	Store     *MemStore
	Jobs      *jobs.Service
	JobStore  *jobs.MemoryStore
	Audit     *FakeAudit
	Notes     *FakeNotifier
	Directory *FakeDirectory
	Configs   *FakeTaxConfigs

	clockMu sync.Mutex
	clock   time.Time
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()
	h := &Harness{
		Store:    NewMemStore(),
		JobStore: jobs.NewMemoryStore(),
		Audit:    &FakeAudit{},
		Notes:    &FakeNotifier{},
		Directory: &FakeDirectory{Employees: map[string]employees.Employee{
			"E-1001": {ID: "E-1001", Name: "Avery Nurse", Jurisdiction: "CA"},
			"E-1002": {ID: "E-1002", Name: "Blake Tech", Jurisdiction: "CA"},
			"E-1003": {ID: "E-1003", Name: "Casey Front", Jurisdiction: "CA"},
		}},
		Configs: &FakeTaxConfigs{Configs: map[string]payconfig.TaxConfig{"CA": CATaxConfig()}},
	}
	collector := metrics.New()
	h.Jobs = jobs.New(h.JobStore, jobs.Options{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}, collector)
	h.Service = NewService(h.Store, Deps{
		TaxConfigs: h.Configs,
		Directory:  h.Directory,
		Audit:      h.Audit,
		Notifier:   h.Notes,
		Jobs:       h.Jobs,
		Metrics:    collector,
		TaxTimeout: time.Second,
	})
	h.clock = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	h.Jobs.Now = h.now
	h.Jobs.Register(JobComputeTaxes, h.Service.TaxJobHandler())
	return h
}

func (h *Harness) now() time.Time {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	return h.clock
}

func (h *Harness) advance(d time.Duration) {
	h.clockMu.Lock()
	defer h.clockMu.Unlock()
	h.clock = h.clock.Add(d)
}

// DrainJobs runs queued jobs until none are due, ignoring backoff by advancing the queue clock.
func (h *Harness) DrainJobs(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		h.advance(time.Minute)
		processed, err := h.Jobs.ProcessNext(ctx)
		if err != nil {
			t.Fatalf("process job: %v", err)
		}
		if !processed {
			return
		}
	}
	t.Fatal("job queue did not drain")
}

func (h *Harness) MustPeriod(t *testing.T, start, end string) PayPeriod {
	t.Helper()
	period, err := h.Service.CreatePeriod(context.Background(), Admin, PeriodInput{
		StartDate: mustDate(t, start),
		EndDate:   mustDate(t, end),
		Frequency: FrequencyBiweekly,
	})
	if err != nil {
		t.Fatalf("create period: %v", err)
	}
	return period
}

func (h *Harness) MustDraft(t *testing.T, periodID string) Run {
	t.Helper()
	run, _, err := h.Service.CreateOrGetRun(context.Background(), Admin, periodID)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return run
}

// ThreeRecords is the standard seed used by the end to end scenarios.
func ThreeRecords() []RecordInput {
	pct := decimal.RequireFromString("5")
	return []RecordInput{
		{
			EmployeeID:    "E-1001",
			HourlyRate:    decimal.RequireFromString("42.50"),
			RegularHours:  decimal.RequireFromString("80"),
			OvertimeHours: decimal.RequireFromString("6.5"),
			BonusPay:      decimal.RequireFromString("150"),
			Deductions: []Deduction{
				{Kind: DeductionRetirement401k, Description: "401k", Percentage: &pct},
				{Kind: DeductionUnionDues, Description: "Nurses union", Amount: decimal.RequireFromString("25")},
			},
		},
		{
			EmployeeID:   "E-1002",
			HourlyRate:   decimal.RequireFromString("31.17"),
			RegularHours: decimal.RequireFromString("76.25"),
			Deductions: []Deduction{
				{Kind: DeductionPreTaxBenefit, Description: "Dental", Amount: decimal.RequireFromString("18.33")},
			},
		},
		{
			EmployeeID:   "E-1003",
			HourlyRate:   decimal.RequireFromString("19.99"),
			RegularHours: decimal.RequireFromString("64"),
		},
	}
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

var errDirectoryDown = errors.New("directory unavailable")
