package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"clinic/internal/domain/payroll"
)

// WritePaystubPDF renders one paystub. createdAt is stamped into the document metadata so output is
// reproducible for a given run.
func WritePaystubPDF(w io.Writer, p Paystub, createdAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetCreationDate(createdAt)
	pdf.SetTitle("Paystub "+p.EmployeeID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Paystub")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Employee: %s (%s)", p.EmployeeName, p.EmployeeID)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Period: %s to %s", p.Period.StartDate.Format(time.DateOnly), p.Period.EndDate.Format(time.DateOnly)))
	pdf.Ln(6)
	pdf.Cell(0, 7, fmt.Sprintf("Pay date: %s    Jurisdiction: %s", p.Period.PayDate.Format(time.DateOnly), p.Jurisdiction))
	pdf.Ln(10)

	line := func(label string, amount decimal.Decimal) {
		pdf.CellFormat(110, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, money(amount), "", 1, "R", false, 0, "")
	}
	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
	}

	section("Earnings")
	line(fmt.Sprintf("Regular (%s h @ %s)", p.RegularHours.StringFixed(2), p.HourlyRate.String()), p.RegularPay)
	line(fmt.Sprintf("Overtime (%s h)", p.OvertimeHours.StringFixed(2)), p.OvertimePay)
	line("Bonus", p.BonusPay)
	line("Gross pay", p.GrossPay)

	section("Deductions")
	for _, kind := range payroll.DeductionKinds {
		if amount := p.DeductionTotals[kind]; !amount.IsZero() {
			line(string(kind), amount)
		}
	}
	line("Total deductions", p.TotalDeductions)

	section("Taxes")
	line("Federal", p.Taxes.Federal)
	line("State", p.Taxes.State)
	line("Social security", p.Taxes.SocialSecurity)
	line("Medicare", p.Taxes.Medicare)
	line("Unemployment", p.Taxes.Unemployment)
	line("Total taxes", p.TotalTaxes)

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	line("Net pay", p.NetPay)

	return pdf.Output(w)
}

func paystubPDF(p Paystub, createdAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePaystubPDF(&buf, p, createdAt); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
