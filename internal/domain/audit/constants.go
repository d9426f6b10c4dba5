package audit

const (
	ActionPeriodCreate = "payroll.period.create"
	ActionRunCreate    = "payroll.run.create"
	ActionRunSeed      = "payroll.run.seed"
	ActionRunPost      = "payroll.run.post"
	ActionRunVoid      = "payroll.run.void"
	ActionTaxCompute   = "payroll.tax.compute"
	ActionExportCSV    = "payroll.export.csv"
	ActionExportACH    = "payroll.export.ach"
	ActionExportPDF    = "payroll.export.pdf"

	ActionPrefixExport = "payroll.export."

	SubjectPayPeriod  = "pay_period"
	SubjectPayrollRun = "payroll_run"
)

// SystemActor attributes work done by background workers with no caller of their own.
var SystemActor = Actor{ID: "system", Name: "System"}
