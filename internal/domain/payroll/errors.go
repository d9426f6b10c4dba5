package payroll

import (
	"errors"
	"fmt"
)

// Root categories. Every error returned by the service wraps exactly one of them.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrDependency   = errors.New("dependency unavailable")
)

var (
	ErrPeriodNotFound = fmt.Errorf("payroll period %w", ErrNotFound)
	ErrRunNotFound    = fmt.Errorf("payroll run %w", ErrNotFound)

	ErrInvalidFrequency   = fmt.Errorf("%w: frequency must be weekly, biweekly or monthly", ErrValidation)
	ErrInvalidPeriodRange = fmt.Errorf("%w: end date must be on or after start date", ErrValidation)
	ErrInvalidPayDate     = fmt.Errorf("%w: pay date must be on or after start date", ErrValidation)
	ErrPeriodOverlap      = fmt.Errorf("%w: an overlapping pay period with the same frequency exists", ErrValidation)
	ErrVoidReasonRequired = fmt.Errorf("%w: void reason is required", ErrValidation)
	ErrNoRecords          = fmt.Errorf("%w: at least one record is required", ErrValidation)
	ErrInvalidRecord      = fmt.Errorf("%w: invalid payroll record", ErrValidation)
	ErrInvalidDeduction   = fmt.Errorf("%w: invalid deduction", ErrValidation)
	ErrUnknownEmployee    = fmt.Errorf("%w: unknown employee", ErrValidation)
	ErrDuplicateEmployee  = fmt.Errorf("%w: employee already has a record in this run", ErrValidation)

	ErrRunNotDraft   = fmt.Errorf("%w: payroll run is not in draft", ErrInvalidState)
	ErrRunNotPosted  = fmt.Errorf("%w: payroll run is not posted", ErrInvalidState)
	ErrRunVoided     = fmt.Errorf("%w: payroll run is voided", ErrInvalidState)
	ErrRecordsFrozen = fmt.Errorf("%w: payroll records are frozen once the run leaves draft", ErrInvalidState)
	ErrTaxPending    = fmt.Errorf("%w: tax computation has not completed", ErrInvalidState)

	ErrTaxAlreadyComputed = errors.New("taxes already computed for run")

	errActiveRunExists = errors.New("active run already exists for period")
)
