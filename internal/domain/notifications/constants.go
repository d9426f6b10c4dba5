package notifications

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"

	TypePayrollTaxCompleted = "payroll.tax.completed"
	TypePayrollTaxFailed    = "payroll.tax.failed"
	TypePayrollRunVoided    = "payroll.run.voided"

	DefaultListLimit = 50
	MaxListLimit     = 200
)

var Severities = []string{SeverityInfo, SeverityWarning, SeverityError, SeveritySuccess}
