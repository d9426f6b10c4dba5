package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/payconfig"
)

var (
	hundred            = decimal.NewFromInt(100)
	overtimeMultiplier = decimal.RequireFromString("1.5")
)

// cents rounds half away from zero, which is half-up for the non-negative amounts payroll produces.
func cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func Earnings(rate, regularHours, overtimeHours, bonus decimal.Decimal) (regular, overtime, gross decimal.Decimal) {
	regular = cents(regularHours.Mul(rate))
	overtime = cents(overtimeHours.Mul(rate).Mul(overtimeMultiplier))
	gross = regular.Add(overtime).Add(cents(bonus))
	return regular, overtime, gross
}

// ResolveDeductions fixes every deduction against gross and splits the totals by tax treatment.
func ResolveDeductions(gross decimal.Decimal, deductions []Deduction) (resolved []Deduction, preTax, postTax decimal.Decimal) {
	resolved = make([]Deduction, 0, len(deductions))
	preTax, postTax = decimal.Zero, decimal.Zero
	for _, d := range deductions {
		r := d.Resolve(gross)
		if r.IsPreTax {
			preTax = preTax.Add(r.Amount)
		} else {
			postTax = postTax.Add(r.Amount)
		}
		resolved = append(resolved, r)
	}
	return resolved, preTax, postTax
}

// ComputeRecord returns rec with earnings, deductions, taxes and net pay filled in.
// Each tax line is rounded to the cent where it is computed so net closes exactly.
func ComputeRecord(rec Record, cfg payconfig.TaxConfig, frequency string, computedAt time.Time) Record {
	out := rec
	out.RegularPay, out.OvertimePay, out.GrossPay = Earnings(rec.HourlyRate, rec.RegularHours, rec.OvertimeHours, rec.BonusPay)
	out.BonusPay = cents(rec.BonusPay)

	var preTax, postTax decimal.Decimal
	out.Deductions, preTax, postTax = ResolveDeductions(out.GrossPay, rec.Deductions)

	out.Warnings = []string{}
	if preTax.GreaterThan(out.GrossPay) {
		out.Warnings = append(out.Warnings, WarningPreTaxExceedsGross)
	}
	taxable := floorZero(out.GrossPay.Sub(preTax))
	incomeBase := floorZero(taxable.Sub(cfg.ExemptionFor(frequency)))

	taxes := Taxes{
		Federal:        cents(incomeBase.Mul(cfg.FederalRate)),
		State:          cents(incomeBase.Mul(cfg.StateRate)),
		SocialSecurity: cents(taxable.Mul(cfg.SocialSecurityRate)),
		Medicare:       cents(taxable.Mul(cfg.MedicareRate)),
		Unemployment:   cents(taxable.Mul(cfg.UnemploymentRate)),
		Jurisdiction:   cfg.Jurisdiction,
		ConfigID:       cfg.ID,
	}
	out.Taxes = &taxes

	net := out.GrossPay.Sub(preTax).Sub(postTax).Sub(taxes.Total())
	if net.IsNegative() {
		out.Warnings = append(out.Warnings, WarningNegativeNet)
	}
	out.NetPay = &net
	at := computedAt
	out.ComputedAt = &at
	return out
}
