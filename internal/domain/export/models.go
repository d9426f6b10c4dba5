package export

import (
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/payroll"
)

const (
	FormatCSV = "csv"
	FormatACH = "ach"
	FormatPDF = "pdf"

	ModeLive = "live"
	ModeTest = "test"

	SkipNoBankInfo     = "no_bank_info"
	SkipInvalidRouting = "invalid_routing"
	SkipInvalidAccount = "invalid_account"
	SkipNonPositiveNet = "non_positive_net"
)

// Paystub is the per-employee view every format renders from, so CSV and PDF never disagree.
type Paystub struct {
	RunID           string
	Period          payroll.PayPeriod
	EmployeeID      string
	EmployeeName    string
	Jurisdiction    string
	HourlyRate      decimal.Decimal
	RegularHours    decimal.Decimal
	OvertimeHours   decimal.Decimal
	RegularPay      decimal.Decimal
	OvertimePay     decimal.Decimal
	BonusPay        decimal.Decimal
	GrossPay        decimal.Decimal
	Deductions      []payroll.Deduction
	DeductionTotals map[payroll.DeductionKind]decimal.Decimal
	TotalDeductions decimal.Decimal
	Taxes           payroll.Taxes
	TotalTaxes      decimal.Decimal
	NetPay          decimal.Decimal
	Warnings        []string
}

type Snapshot struct {
	Run      payroll.Run
	Period   payroll.PayPeriod
	Paystubs []Paystub
}

// ACHFile is a generated NACHA file plus the employees left out of it.
type ACHFile struct {
	Content     []byte            `json:"-"`
	Filename    string            `json:"filename"`
	Mode        string            `json:"mode"`
	EntryCount  int               `json:"entryCount"`
	TotalCredit decimal.Decimal   `json:"totalCredit"`
	Skipped     []string          `json:"skipped"`
	SkipReasons map[string]string `json:"skipReasons"`
}

// Partial reports a successful file that omits at least one employee.
func (f ACHFile) Partial() bool {
	return len(f.Skipped) > 0
}

type Document struct {
	Content     []byte
	Filename    string
	ContentType string
	Documents   int
}

type ACHOptions struct {
	Mode string
	Now  time.Time
}
