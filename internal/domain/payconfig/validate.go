package payconfig

import (
	"fmt"
	"strings"
)

// ValidRoutingNumber applies the ABA 3-7-1 checksum to a nine digit routing number.
func ValidRoutingNumber(routing string) bool {
	if len(routing) != 9 || !allDigits(routing) {
		return false
	}
	weights := [9]int{3, 7, 1, 3, 7, 1, 3, 7, 1}
	sum := 0
	for i, ch := range routing {
		sum += int(ch-'0') * weights[i]
	}
	return sum%10 == 0
}

func (b BankInfo) Validate() error {
	if !ValidRoutingNumber(b.RoutingNumber) {
		return ErrInvalidRouting
	}
	account := strings.TrimSpace(b.AccountNumber)
	if account == "" || len(account) > 17 {
		return ErrInvalidAccount
	}
	if b.AccountType != AccountTypeChecking && b.AccountType != AccountTypeSavings {
		return fmt.Errorf("%w: account type %q", ErrInvalidAccount, b.AccountType)
	}
	return nil
}

func (c ACHConfig) Validate() error {
	if strings.TrimSpace(c.CompanyName) == "" {
		return fmt.Errorf("%w: company name required", ErrInvalidACHConfig)
	}
	if id := strings.TrimSpace(c.CompanyID); id == "" || len(id) > 10 {
		return fmt.Errorf("%w: company id must be 1-10 characters", ErrInvalidACHConfig)
	}
	if !ValidRoutingNumber(c.ImmediateDestination) {
		return fmt.Errorf("%w: immediate destination must be a routing number", ErrInvalidACHConfig)
	}
	if origin := strings.TrimSpace(c.ImmediateOrigin); origin == "" || len(origin) > 10 {
		return fmt.Errorf("%w: immediate origin must be 1-10 characters", ErrInvalidACHConfig)
	}
	if len(c.OriginatingDFI) != 8 || !allDigits(c.OriginatingDFI) {
		return fmt.Errorf("%w: originating dfi must be 8 digits", ErrInvalidACHConfig)
	}
	return nil
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
