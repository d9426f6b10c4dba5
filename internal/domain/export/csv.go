package export

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/payroll"
)

// CSVHeader is the fixed column order. Deduction columns follow payroll.DeductionKinds.
func CSVHeader() []string {
	header := []string{
		"run_id", "period_start", "period_end", "pay_date",
		"employee_id", "employee_name", "jurisdiction",
		"regular_hours", "overtime_hours", "hourly_rate",
		"regular_pay", "overtime_pay", "bonus_pay", "gross_pay",
	}
	for _, kind := range payroll.DeductionKinds {
		header = append(header, "deduction_"+string(kind))
	}
	return append(header,
		"total_deductions",
		"federal_tax", "state_tax", "social_security", "medicare", "unemployment", "total_taxes",
		"net_pay",
	)
}

// WriteCSV writes the header even when the snapshot has no paystubs.
func WriteCSV(w io.Writer, snap Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return err
	}
	for _, p := range snap.Paystubs {
		row := []string{
			p.RunID,
			p.Period.StartDate.Format(time.DateOnly),
			p.Period.EndDate.Format(time.DateOnly),
			p.Period.PayDate.Format(time.DateOnly),
			p.EmployeeID,
			p.EmployeeName,
			p.Jurisdiction,
			p.RegularHours.StringFixed(2),
			p.OvertimeHours.StringFixed(2),
			p.HourlyRate.String(),
			money(p.RegularPay),
			money(p.OvertimePay),
			money(p.BonusPay),
			money(p.GrossPay),
		}
		for _, kind := range payroll.DeductionKinds {
			row = append(row, money(p.DeductionTotals[kind]))
		}
		row = append(row,
			money(p.TotalDeductions),
			money(p.Taxes.Federal),
			money(p.Taxes.State),
			money(p.Taxes.SocialSecurity),
			money(p.Taxes.Medicare),
			money(p.Taxes.Unemployment),
			money(p.TotalTaxes),
			money(p.NetPay),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
