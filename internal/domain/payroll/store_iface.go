package payroll

import (
	"context"
	"time"
)

// TaxApplyFunc receives the locked run, its period and records and returns the records to persist.
type TaxApplyFunc func(run Run, period PayPeriod, records []Record) ([]Record, error)

type StoreAPI interface {
	CreatePeriod(ctx context.Context, in PeriodInput, createdBy string) (PayPeriod, error)
	GetPeriod(ctx context.Context, id string) (PayPeriod, error)
	ListPeriods(ctx context.Context, limit, offset int) ([]PayPeriod, error)
	OverlappingPeriodExists(ctx context.Context, frequency string, start, end time.Time) (bool, error)

	ActiveRunForPeriod(ctx context.Context, periodID string) (Run, error)
	InsertRun(ctx context.Context, periodID, createdBy string) (Run, error)
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	UpdateRun(ctx context.Context, id string, fn func(*Run) error) (Run, error)

	ListRecords(ctx context.Context, runID string) ([]Record, error)
	InsertRecords(ctx context.Context, runID string, records []Record) ([]Record, error)
	ApplyTaxResults(ctx context.Context, runID string, fn TaxApplyFunc) (Run, []Record, error)
}
