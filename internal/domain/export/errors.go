package export

import (
	"fmt"

	"clinic/internal/domain/payroll"
)

// Export errors wrap the payroll roots so transport maps them the same way.
var (
	ErrUnknownMode       = fmt.Errorf("%w: ach mode must be live or test", payroll.ErrValidation)
	ErrEmployeeNotInRun  = fmt.Errorf("employee record %w in run", payroll.ErrNotFound)
	ErrACHUnavailable    = fmt.Errorf("%w: ach originator configuration", payroll.ErrDependency)
	ErrDirectoryFailed   = fmt.Errorf("%w: employee directory", payroll.ErrDependency)
	ErrBankLookupFailed  = fmt.Errorf("%w: employee bank info", payroll.ErrDependency)
	ErrIncompleteRecords = fmt.Errorf("%w: some records have no computed taxes", payroll.ErrInvalidState)
)
