package payconfig

import "errors"

var (
	ErrNoTaxConfig      = errors.New("no tax configuration effective for jurisdiction and date")
	ErrNoACHConfig      = errors.New("ach originator configuration not found")
	ErrInvalidACHConfig = errors.New("ach originator configuration is invalid")
	ErrInvalidRouting   = errors.New("routing number failed checksum")
	ErrInvalidAccount   = errors.New("bank account number is invalid")
)
