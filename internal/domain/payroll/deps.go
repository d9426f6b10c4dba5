package payroll

import (
	"context"
	"time"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/employees"
	"clinic/internal/domain/notifications"
	"clinic/internal/domain/payconfig"
	"clinic/internal/platform/jobs"
)

type TaxConfigSource interface {
	TaxConfigFor(ctx context.Context, jurisdiction string, payDate time.Time) (payconfig.TaxConfig, error)
}

type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, id string) (employees.Employee, error)
	GetEmployees(ctx context.Context, ids []string) (map[string]employees.Employee, error)
}

type AuditLog interface {
	Record(ctx context.Context, entry audit.Entry) error
	Count(ctx context.Context, filter audit.Filter) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, in notifications.Input) (notifications.Notification, error)
}

type Scheduler interface {
	Enqueue(ctx context.Context, kind, subjectID string, payload any) (jobs.Job, error)
	Cancel(ctx context.Context, kind, subjectID string) (int, error)
}
