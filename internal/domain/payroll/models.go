package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/audit"
)

type PayPeriod struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Frequency string    `json:"frequency"`
	PayDate   time.Time `json:"payDate"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"createdAt"`
}

type PeriodInput struct {
	StartDate time.Time
	EndDate   time.Time
	Frequency string
	PayDate   time.Time
}

type Run struct {
	ID            string     `json:"id"`
	PeriodID      string     `json:"periodId"`
	Status        string     `json:"status"`
	TaxStatus     string     `json:"taxStatus"`
	TaxError      string     `json:"taxError,omitempty"`
	TaxComputedAt *time.Time `json:"taxComputedAt,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	PostedBy      string     `json:"postedBy,omitempty"`
	PostedAt      *time.Time `json:"postedAt,omitempty"`
	VoidedBy      string     `json:"voidedBy,omitempty"`
	VoidedAt      *time.Time `json:"voidedAt,omitempty"`
	VoidReason    string     `json:"voidReason,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Exportable reports why a run cannot feed an export, or nil when it can.
func (r Run) Exportable() error {
	switch {
	case r.Status == RunStatusVoided:
		return ErrRunVoided
	case r.Status != RunStatusPosted:
		return ErrRunNotPosted
	case r.TaxStatus != TaxStatusCompleted:
		return ErrTaxPending
	}
	return nil
}

type RunFilter struct {
	PeriodID string
	Status   string
	Limit    int
	Offset   int
}

type Taxes struct {
	Federal        decimal.Decimal `json:"federal"`
	State          decimal.Decimal `json:"state"`
	SocialSecurity decimal.Decimal `json:"socialSecurity"`
	Medicare       decimal.Decimal `json:"medicare"`
	Unemployment   decimal.Decimal `json:"unemployment"`
	Jurisdiction   string          `json:"jurisdiction"`
	ConfigID       string          `json:"configId,omitempty"`
}

func (t Taxes) Total() decimal.Decimal {
	return t.Federal.Add(t.State).Add(t.SocialSecurity).Add(t.Medicare).Add(t.Unemployment)
}

// Record is one employee's line in a run. Taxes and NetPay stay nil until tax computation completes.
type Record struct {
	ID            string           `json:"id"`
	RunID         string           `json:"runId"`
	EmployeeID    string           `json:"employeeId"`
	HourlyRate    decimal.Decimal  `json:"hourlyRate"`
	RegularHours  decimal.Decimal  `json:"regularHours"`
	OvertimeHours decimal.Decimal  `json:"overtimeHours"`
	RegularPay    decimal.Decimal  `json:"regularPay"`
	OvertimePay   decimal.Decimal  `json:"overtimePay"`
	BonusPay      decimal.Decimal  `json:"bonusPay"`
	GrossPay      decimal.Decimal  `json:"grossPay"`
	Deductions    []Deduction      `json:"deductions"`
	Taxes         *Taxes           `json:"taxes,omitempty"`
	NetPay        *decimal.Decimal `json:"netPay,omitempty"`
	Warnings      []string         `json:"warnings"`
	ComputedAt    *time.Time       `json:"computedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func (r Record) TotalDeductions() decimal.Decimal {
	total := decimal.Zero
	for _, d := range r.Deductions {
		total = total.Add(d.Amount)
	}
	return total
}

type RecordInput struct {
	EmployeeID    string
	HourlyRate    decimal.Decimal
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	BonusPay      decimal.Decimal
	Deductions    []Deduction
}

type RunDetail struct {
	Run     Run       `json:"run"`
	Period  PayPeriod `json:"period"`
	Records []Record  `json:"records"`
}

type TaxSummary struct {
	RunID      string          `json:"runId"`
	Records    int             `json:"records"`
	TotalGross decimal.Decimal `json:"totalGross"`
	TotalTaxes decimal.Decimal `json:"totalTaxes"`
	TotalNet   decimal.Decimal `json:"totalNet"`
	Warnings   int             `json:"warnings"`
}

// TaxJobPayload is queued on post and carries the poster's identity for the completion notice.
type TaxJobPayload struct {
	RunID     string      `json:"runId"`
	Actor     audit.Actor `json:"actor"`
	RequestID string      `json:"requestId,omitempty"`
}
