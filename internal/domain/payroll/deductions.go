package payroll

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type DeductionKind string

const (
	DeductionPreTaxBenefit  DeductionKind = "pre_tax_benefit"
	DeductionRetirement401k DeductionKind = "retirement_401k"
	DeductionGarnishment    DeductionKind = "garnishment"
	DeductionPostTaxBenefit DeductionKind = "post_tax_benefit"
	DeductionUnionDues      DeductionKind = "union_dues"
)

// DeductionKinds is the closed set of kinds, in export column order.
var DeductionKinds = []DeductionKind{
	DeductionPreTaxBenefit,
	DeductionRetirement401k,
	DeductionGarnishment,
	DeductionPostTaxBenefit,
	DeductionUnionDues,
}

func (k DeductionKind) Valid() bool {
	for _, candidate := range DeductionKinds {
		if k == candidate {
			return true
		}
	}
	return false
}

func (k DeductionKind) PreTax() bool {
	return k == DeductionPreTaxBenefit || k == DeductionRetirement401k
}

// Deduction is either a fixed amount or a percentage of gross pay. Once resolved, Amount always holds the cents withheld.
type Deduction struct {
	Kind        DeductionKind    `json:"type"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Percentage  *decimal.Decimal `json:"percentage,omitempty"`
	IsPreTax    bool             `json:"isPreTax"`
}

func (d Deduction) Validate() error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDeduction, d.Kind)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidDeduction)
	}
	if d.Percentage != nil {
		if !d.Percentage.IsPositive() || d.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage must be greater than 0 and at most 100", ErrInvalidDeduction)
		}
		return nil
	}
	if d.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidDeduction)
	}
	return nil
}

// Resolve fixes the withheld amount against gross and derives IsPreTax from the kind.
func (d Deduction) Resolve(gross decimal.Decimal) Deduction {
	out := d
	out.IsPreTax = d.Kind.PreTax()
	if d.Percentage != nil {
		out.Amount = cents(gross.Mul(*d.Percentage).Div(hundred))
	} else {
		out.Amount = cents(d.Amount)
	}
	return out
}
