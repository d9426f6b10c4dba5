package payconfig

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"
)

type Exemption struct {
	Frequency string          `json:"frequency"`
	Amount    decimal.Decimal `json:"amount"`
}

// TaxConfig is one effective-dated version of a jurisdiction's withholding rates. Rates are fractions (0.062).
type TaxConfig struct {
	ID                 string          `json:"id"`
	Jurisdiction       string          `json:"jurisdiction"`
	EffectiveDate      time.Time       `json:"effectiveDate"`
	FederalRate        decimal.Decimal `json:"federalRate"`
	StateRate          decimal.Decimal `json:"stateRate"`
	SocialSecurityRate decimal.Decimal `json:"socialSecurityRate"`
	MedicareRate       decimal.Decimal `json:"medicareRate"`
	UnemploymentRate   decimal.Decimal `json:"unemploymentRate"`
	Exemptions         []Exemption     `json:"exemptions"`
}

// ExemptionFor returns the per-period amount excluded from the income tax base.
func (c TaxConfig) ExemptionFor(frequency string) decimal.Decimal {
	for _, ex := range c.Exemptions {
		if ex.Frequency == frequency {
			return ex.Amount
		}
	}
	return decimal.Zero
}

type ACHConfig struct {
	ID                       string `json:"id"`
	CompanyName              string `json:"companyName"`
	CompanyID                string `json:"companyId"`
	ImmediateDestination     string `json:"immediateDestination"`
	ImmediateDestinationName string `json:"immediateDestinationName"`
	ImmediateOrigin          string `json:"immediateOrigin"`
	ImmediateOriginName      string `json:"immediateOriginName"`
	OriginatingDFI           string `json:"originatingDfi"`
	EntryDescription         string `json:"entryDescription"`
}

type BankInfo struct {
	EmployeeID    string `json:"employeeId"`
	RoutingNumber string `json:"routingNumber"`
	AccountNumber string `json:"-"`
	AccountLast4  string `json:"accountLast4"`
	AccountType   string `json:"accountType"`
	Active        bool   `json:"active"`
}
