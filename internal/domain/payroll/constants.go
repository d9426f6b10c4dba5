package payroll

const (
	RunStatusDraft  = "draft"
	RunStatusPosted = "posted"
	RunStatusVoided = "voided"

	TaxStatusNotStarted = "not_started"
	TaxStatusPending    = "pending"
	TaxStatusCompleted  = "completed"
	TaxStatusFailed     = "failed"
	TaxStatusCancelled  = "cancelled"

	FrequencyWeekly   = "weekly"
	FrequencyBiweekly = "biweekly"
	FrequencyMonthly  = "monthly"

	WarningNegativeNet         = "negative_net"
	WarningPreTaxExceedsGross  = "pre_tax_exceeds_gross"
	WarningMissingJurisdiction = "missing_jurisdiction"

	JobComputeTaxes = "payroll.compute_taxes"

	// DefaultJurisdiction is used for employees the directory lists without one.
	DefaultJurisdiction = "US"

	DefaultListLimit = 50
	MaxListLimit     = 200
)

var Frequencies = []string{FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly}

func validFrequency(value string) bool {
	for _, f := range Frequencies {
		if f == value {
			return true
		}
	}
	return false
}
