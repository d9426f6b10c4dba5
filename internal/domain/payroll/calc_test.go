package payroll

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestEarningsRoundsEachLineToCent(t *testing.T) {
	cases := []struct {
		name                    string
		rate, reg, ot, bonus    string
		wantReg, wantOT, wantGr string
	}{
		{name: "overtime half up", rate: "42.50", reg: "80", ot: "6.5", bonus: "150", wantReg: "3400", wantOT: "414.38", wantGr: "3964.38"},
		{name: "fractional rate", rate: "0.125", reg: "1", ot: "0", bonus: "0", wantReg: "0.13", wantOT: "0", wantGr: "0.13"},
		{name: "no hours", rate: "25", reg: "0", ot: "0", bonus: "99.999", wantReg: "0", wantOT: "0", wantGr: "100"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			reg, ot, gross := Earnings(dec(tc.rate), dec(tc.reg), dec(tc.ot), dec(tc.bonus))
			if !reg.Equal(dec(tc.wantReg)) || !ot.Equal(dec(tc.wantOT)) || !gross.Equal(dec(tc.wantGr)) {
				t.Fatalf("expected %s/%s/%s, got %s/%s/%s", tc.wantReg, tc.wantOT, tc.wantGr, reg, ot, gross)
			}
		})
	}
}

func TestComputeRecordWorkedExample(t *testing.T) {
	pct := dec("5")
	rec := Record{
		EmployeeID:    "E-1001",
		HourlyRate:    dec("42.50"),
		RegularHours:  dec("80"),
		OvertimeHours: dec("6.5"),
		BonusPay:      dec("150"),
		Deductions: []Deduction{
			{Kind: DeductionRetirement401k, Description: "401k", Percentage: &pct},
			{Kind: DeductionUnionDues, Description: "Union", Amount: dec("25")},
		},
	}
	at := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	out := ComputeRecord(rec, CATaxConfig(), FrequencyBiweekly, at)

	expect := map[string][2]decimal.Decimal{
		"gross":        {out.GrossPay, dec("3964.38")},
		"401k":         {out.Deductions[0].Amount, dec("198.22")},
		"federal":      {out.Taxes.Federal, dec("439.94")},
		"state":        {out.Taxes.State, dec("183.31")},
		"social":       {out.Taxes.SocialSecurity, dec("233.50")},
		"medicare":     {out.Taxes.Medicare, dec("54.61")},
		"unemployment": {out.Taxes.Unemployment, dec("22.60")},
		"net":          {*out.NetPay, dec("2807.20")},
	}
	for name, pair := range expect {
		if !pair[0].Equal(pair[1]) {
			t.Fatalf("%s: expected %s, got %s", name, pair[1], pair[0])
		}
	}
	if !out.Deductions[0].IsPreTax || out.Deductions[1].IsPreTax {
		t.Fatalf("expected pre-tax flag derived from kind, got %+v", out.Deductions)
	}
	if out.Taxes.Jurisdiction != "CA" || out.Taxes.ConfigID == "" {
		t.Fatalf("expected jurisdiction and config id recorded, got %+v", out.Taxes)
	}
	if out.ComputedAt == nil || !out.ComputedAt.Equal(at) {
		t.Fatalf("expected computed at %s", at)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", out.Warnings)
	}
}

func TestComputeRecordWarnings(t *testing.T) {
	cfg := CATaxConfig()

	garnished := ComputeRecord(Record{
		HourlyRate:   dec("10"),
		RegularHours: dec("1"),
		Deductions:   []Deduction{{Kind: DeductionGarnishment, Description: "Court order", Amount: dec("50")}},
	}, cfg, FrequencyWeekly, time.Now())
	if !garnished.NetPay.IsNegative() {
		t.Fatalf("expected negative net, got %s", garnished.NetPay)
	}
	if !containsString(garnished.Warnings, WarningNegativeNet) {
		t.Fatalf("expected negative net warning, got %v", garnished.Warnings)
	}

	oversized := ComputeRecord(Record{
		HourlyRate:   dec("10"),
		RegularHours: dec("1"),
		Deductions:   []Deduction{{Kind: DeductionPreTaxBenefit, Description: "Plan", Amount: dec("20")}},
	}, cfg, FrequencyWeekly, time.Now())
	if !containsString(oversized.Warnings, WarningPreTaxExceedsGross) {
		t.Fatalf("expected pre-tax warning, got %v", oversized.Warnings)
	}
	if !oversized.Taxes.Total().IsZero() {
		t.Fatalf("expected zero taxes on a zero taxable base, got %s", oversized.Taxes.Total())
	}
}

func TestDeductionResolveAndValidate(t *testing.T) {
	pct := dec("1")
	d := Deduction{Kind: DeductionPostTaxBenefit, Description: "Life", Percentage: &pct}
	if got := d.Resolve(dec("0.50")).Amount; !got.Equal(dec("0.01")) {
		t.Fatalf("expected half-up to 0.01, got %s", got)
	}

	bad := []Deduction{
		{Kind: "bonus_clawback", Description: "x"},
		{Kind: DeductionUnionDues, Description: " "},
		{Kind: DeductionUnionDues, Description: "dues", Amount: dec("-1")},
		{Kind: DeductionUnionDues, Description: "dues", Percentage: decPtr("0")},
		{Kind: DeductionUnionDues, Description: "dues", Percentage: decPtr("100.01")},
	}
	for i, candidate := range bad {
		if err := candidate.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

// A thousand-plus pseudo-random records must close to the cent individually and in aggregate.
func TestNumericClosureAcrossManyRecords(t *testing.T) {
	rng := rand.New(rand.NewSource(20250114))
	cfg := CATaxConfig()
	at := time.Now()

	totalGross, totalDeductions, totalTaxes, totalNet := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for i := 0; i < 1500; i++ {
		pct := decimal.New(int64(rng.Intn(1500)+1), -2)
		rec := Record{
			HourlyRate:    decimal.New(int64(rng.Intn(9000)+1500), -2),
			RegularHours:  decimal.New(int64(rng.Intn(8000)), -2),
			OvertimeHours: decimal.New(int64(rng.Intn(1500)), -2),
			BonusPay:      decimal.New(int64(rng.Intn(50000)), -2),
			Deductions: []Deduction{
				{Kind: DeductionRetirement401k, Description: "401k", Percentage: &pct},
				{Kind: DeductionPreTaxBenefit, Description: "Medical", Amount: decimal.New(int64(rng.Intn(20000)), -2)},
				{Kind: DeductionUnionDues, Description: "Dues", Amount: decimal.New(int64(rng.Intn(5000)), -2)},
			},
		}
		out := ComputeRecord(rec, cfg, FrequencyBiweekly, at)
		deductions := out.TotalDeductions()
		taxes := out.Taxes.Total()
		want := out.GrossPay.Sub(deductions).Sub(taxes)
		if !out.NetPay.Equal(want) {
			t.Fatalf("record %d: net %s != gross %s - deductions %s - taxes %s", i, out.NetPay, out.GrossPay, deductions, taxes)
		}
		for _, line := range []decimal.Decimal{out.GrossPay, out.Taxes.Federal, out.Taxes.State, out.Taxes.SocialSecurity, out.Taxes.Medicare, out.Taxes.Unemployment, *out.NetPay} {
			if !line.Equal(line.Round(2)) {
				t.Fatalf("record %d: amount %s is not whole cents", i, line)
			}
		}
		totalGross = totalGross.Add(out.GrossPay)
		totalDeductions = totalDeductions.Add(deductions)
		totalTaxes = totalTaxes.Add(taxes)
		totalNet = totalNet.Add(*out.NetPay)
	}
	if !totalNet.Equal(totalGross.Sub(totalDeductions).Sub(totalTaxes)) {
		t.Fatalf("aggregate drift: net %s vs %s", totalNet, totalGross.Sub(totalDeductions).Sub(totalTaxes))
	}
}

func TestRunExportable(t *testing.T) {
	cases := []struct {
		name string
		run  Run
		want error
	}{
		{name: "draft", run: Run{Status: RunStatusDraft}, want: ErrRunNotPosted},
		{name: "voided", run: Run{Status: RunStatusVoided, TaxStatus: TaxStatusCompleted}, want: ErrRunVoided},
		{name: "pending taxes", run: Run{Status: RunStatusPosted, TaxStatus: TaxStatusPending}, want: ErrTaxPending},
		{name: "ready", run: Run{Status: RunStatusPosted, TaxStatus: TaxStatusCompleted}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.run.Exportable(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
