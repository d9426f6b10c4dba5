package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/payconfig"
)

const (
	achRecordSize     = 94
	achBlockingFactor = 10
	achServiceCredits = "220"
	achSECCode        = "PPD"

	txCheckingCredit  = "22"
	txCheckingPrenote = "23"
	txSavingsCredit   = "32"
	txSavingsPrenote  = "33"
)

// BuildACH renders a single-batch PPD credit file. Employees that cannot be paid are listed in Skipped
// with a reason and the rest of the file is still produced. Test mode marks the headers and sends
// zero-dollar prenotes so the file can never move funds.
func BuildACH(cfg payconfig.ACHConfig, snap Snapshot, banks map[string]payconfig.BankInfo, opts ACHOptions) (ACHFile, error) {
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode != ModeLive && mode != ModeTest {
		return ACHFile{}, ErrUnknownMode
	}
	if err := cfg.Validate(); err != nil {
		return ACHFile{}, fmt.Errorf("%w: %v", ErrACHUnavailable, err)
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	test := mode == ModeTest

	out := ACHFile{Mode: mode, TotalCredit: decimal.Zero, Skipped: []string{}, SkipReasons: map[string]string{}}
	var (
		entries   []string
		entryHash int64
	)
	for _, p := range snap.Paystubs {
		bank, ok := banks[p.EmployeeID]
		reason := ""
		switch {
		case !ok || !bank.Active:
			reason = SkipNoBankInfo
		case !payconfig.ValidRoutingNumber(bank.RoutingNumber):
			reason = SkipInvalidRouting
		case bank.Validate() != nil:
			reason = SkipInvalidAccount
		case !p.NetPay.IsPositive():
			reason = SkipNonPositiveNet
		}
		if reason != "" {
			out.Skipped = append(out.Skipped, p.EmployeeID)
			out.SkipReasons[p.EmployeeID] = reason
			continue
		}

		amount := p.NetPay
		code := txCheckingCredit
		if bank.AccountType == payconfig.AccountTypeSavings {
			code = txSavingsCredit
		}
		if test {
			amount = decimal.Zero
			code = prenoteCode(code)
		}
		seq := len(entries) + 1
		routing8, _ := strconv.ParseInt(bank.RoutingNumber[:8], 10, 64)
		entryHash += routing8
		out.TotalCredit = out.TotalCredit.Add(amount)
		entries = append(entries, entryDetail(code, bank, amount, p, cfg.OriginatingDFI, seq))
	}
	out.EntryCount = len(entries)

	lines := make([]string, 0, len(entries)+4)
	lines = append(lines, fileHeader(cfg, now, test), batchHeader(cfg, snap, test))
	lines = append(lines, entries...)
	lines = append(lines,
		batchControl(cfg, len(entries), entryHash, out.TotalCredit),
		"", // file control is filled once the block count is known
	)
	blocks := (len(lines) + achBlockingFactor - 1) / achBlockingFactor
	lines[len(lines)-1] = fileControl(blocks, len(entries), entryHash, out.TotalCredit)
	for len(lines)%achBlockingFactor != 0 {
		lines = append(lines, strings.Repeat("9", achRecordSize))
	}

	out.Content = []byte(strings.Join(lines, "\n") + "\n")
	out.Filename = achFilename(snap.Run.ID, now, test)
	return out, nil
}

func prenoteCode(code string) string {
	if code == txSavingsCredit {
		return txSavingsPrenote
	}
	return txCheckingPrenote
}

func fileHeader(cfg payconfig.ACHConfig, now time.Time, test bool) string {
	reference := ""
	if test {
		reference = "TEST"
	}
	var b strings.Builder
	b.WriteString("1")
	b.WriteString("01")
	b.WriteString(" " + cfg.ImmediateDestination)
	b.WriteString(alphaRight(cfg.ImmediateOrigin, 10))
	b.WriteString(now.Format("060102"))
	b.WriteString(now.Format("1504"))
	b.WriteString("A")
	b.WriteString("094")
	b.WriteString("10")
	b.WriteString("1")
	b.WriteString(alpha(cfg.ImmediateDestinationName, 23))
	b.WriteString(alpha(cfg.ImmediateOriginName, 23))
	b.WriteString(alpha(reference, 8))
	return b.String()
}

func batchHeader(cfg payconfig.ACHConfig, snap Snapshot, test bool) string {
	discretionary := ""
	if test {
		discretionary = "TEST MODE"
	}
	description := cfg.EntryDescription
	if description == "" {
		description = "PAYROLL"
	}
	payDate := snap.Period.PayDate.Format("060102")
	var b strings.Builder
	b.WriteString("5")
	b.WriteString(achServiceCredits)
	b.WriteString(alpha(cfg.CompanyName, 16))
	b.WriteString(alpha(discretionary, 20))
	b.WriteString(alpha(cfg.CompanyID, 10))
	b.WriteString(achSECCode)
	b.WriteString(alpha(description, 10))
	b.WriteString(payDate)
	b.WriteString(payDate)
	b.WriteString("   ")
	b.WriteString("1")
	b.WriteString(cfg.OriginatingDFI)
	b.WriteString(numeric(1, 7))
	return b.String()
}

func entryDetail(code string, bank payconfig.BankInfo, amount decimal.Decimal, p Paystub, odfi string, seq int) string {
	var b strings.Builder
	b.WriteString("6")
	b.WriteString(code)
	b.WriteString(bank.RoutingNumber[:8])
	b.WriteString(bank.RoutingNumber[8:9])
	b.WriteString(alpha(bank.AccountNumber, 17))
	b.WriteString(numeric(cents(amount), 10))
	b.WriteString(alpha(p.EmployeeID, 15))
	b.WriteString(alpha(p.EmployeeName, 22))
	b.WriteString("  ")
	b.WriteString("0")
	b.WriteString(odfi)
	b.WriteString(numeric(int64(seq), 7))
	return b.String()
}

func batchControl(cfg payconfig.ACHConfig, entries int, hash int64, credit decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("8")
	b.WriteString(achServiceCredits)
	b.WriteString(numeric(int64(entries), 6))
	b.WriteString(numeric(hash%10_000_000_000, 10))
	b.WriteString(numeric(0, 12))
	b.WriteString(numeric(cents(credit), 12))
	b.WriteString(alpha(cfg.CompanyID, 10))
	b.WriteString(strings.Repeat(" ", 19))
	b.WriteString(strings.Repeat(" ", 6))
	b.WriteString(cfg.OriginatingDFI)
	b.WriteString(numeric(1, 7))
	return b.String()
}

func fileControl(blocks, entries int, hash int64, credit decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("9")
	b.WriteString(numeric(1, 6))
	b.WriteString(numeric(int64(blocks), 6))
	b.WriteString(numeric(int64(entries), 8))
	b.WriteString(numeric(hash%10_000_000_000, 10))
	b.WriteString(numeric(0, 12))
	b.WriteString(numeric(cents(credit), 12))
	b.WriteString(strings.Repeat(" ", 39))
	return b.String()
}

func achFilename(runID string, now time.Time, test bool) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	name := "payroll-" + short + "-" + now.Format("20060102")
	if test {
		name += "-test"
	}
	return name + ".ach"
}

func cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// alpha upper-cases, strips anything outside printable ASCII and pads or truncates to width.
func alpha(value string, width int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(value)))
	if len(cleaned) > width {
		return cleaned[:width]
	}
	return cleaned + strings.Repeat(" ", width-len(cleaned))
}

func alphaRight(value string, width int) string {
	cleaned := strings.TrimSpace(value)
	if len(cleaned) > width {
		return cleaned[:width]
	}
	return strings.Repeat(" ", width-len(cleaned)) + cleaned
}

func numeric(value int64, width int) string {
	s := strconv.FormatInt(value, 10)
	if len(s) > width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}
