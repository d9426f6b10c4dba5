package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/notifications"
	"clinic/internal/domain/payconfig"
	"clinic/internal/platform/jobs"
	"clinic/internal/requestctx"
)

// ComputeTaxes fills taxes and net pay for every record of a posted run in one transaction.
// Configuration and directory failures wrap ErrDependency.
func (s *Service) ComputeTaxes(ctx context.Context, runID string) (TaxSummary, error) {
	_, records, err := s.store.ApplyTaxResults(ctx, runID, func(run Run, period PayPeriod, records []Record) ([]Record, error) {
		switch {
		case run.Status == RunStatusVoided:
			return nil, ErrRunVoided
		case run.Status != RunStatusPosted:
			return nil, ErrRunNotPosted
		case run.TaxStatus == TaxStatusCompleted:
			return nil, ErrTaxAlreadyComputed
		}
		return s.computeRecords(ctx, period, records)
	})
	if err != nil {
		return TaxSummary{}, err
	}
	s.metrics.RecordTaxRecords(len(records))
	return summarize(runID, records), nil
}

func (s *Service) computeRecords(ctx context.Context, period PayPeriod, records []Record) ([]Record, error) {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.EmployeeID)
	}
	directory, err := s.directory.GetEmployees(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: employee directory: %v", ErrDependency, err)
	}

	configs := map[string]payconfig.TaxConfig{}
	computedAt := s.Now()
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emp, ok := directory[rec.EmployeeID]
		if !ok {
			return nil, fmt.Errorf("%w: employee %s missing from directory", ErrDependency, rec.EmployeeID)
		}
		jurisdiction := emp.Jurisdiction
		if jurisdiction == "" {
			jurisdiction = DefaultJurisdiction
		}
		cfg, ok := configs[jurisdiction]
		if !ok {
			cfg, err = s.taxConfigs.TaxConfigFor(ctx, jurisdiction, period.PayDate)
			if err != nil {
				return nil, fmt.Errorf("%w: tax configuration for %s: %v", ErrDependency, jurisdiction, err)
			}
			configs[jurisdiction] = cfg
		}
		computed := ComputeRecord(rec, cfg, period.Frequency, computedAt)
		if emp.Jurisdiction == "" {
			computed.Warnings = append(computed.Warnings, WarningMissingJurisdiction)
		}
		out = append(out, computed)
	}
	return out, nil
}

func summarize(runID string, records []Record) TaxSummary {
	summary := TaxSummary{RunID: runID, Records: len(records), TotalGross: decimal.Zero, TotalTaxes: decimal.Zero, TotalNet: decimal.Zero}
	for _, rec := range records {
		summary.TotalGross = summary.TotalGross.Add(rec.GrossPay)
		if rec.Taxes != nil {
			summary.TotalTaxes = summary.TotalTaxes.Add(rec.Taxes.Total())
		}
		if rec.NetPay != nil {
			summary.TotalNet = summary.TotalNet.Add(*rec.NetPay)
		}
		summary.Warnings += len(rec.Warnings)
	}
	return summary
}

// TaxJobHandler adapts ComputeTaxes to the job queue. Completion and terminal failure are both
// reported through an audit event and a notification to whoever posted the run.
func (s *Service) TaxJobHandler() jobs.Handler {
	return jobs.Handler{
		Timeout:   s.taxTimeout,
		Retryable: func(err error) bool { return errors.Is(err, ErrDependency) },
		Run: func(ctx context.Context, job jobs.Job) (any, error) {
			var payload TaxJobPayload
			if err := job.Decode(&payload); err != nil {
				return nil, fmt.Errorf("%w: decode tax job payload: %v", ErrValidation, err)
			}
			ctx = requestctx.WithRequestID(ctx, payload.RequestID)

			summary, err := s.ComputeTaxes(ctx, payload.RunID)
			switch {
			case errors.Is(err, ErrTaxAlreadyComputed):
				return map[string]any{"runId": payload.RunID, "skipped": "already computed"}, nil
			case errors.Is(err, ErrRunVoided):
				s.record(ctx, audit.Entry{
					Action:      audit.ActionTaxCompute,
					SubjectType: audit.SubjectPayrollRun,
					SubjectID:   payload.RunID,
					Actor:       audit.SystemActor,
					Meta:        map[string]any{"cancelled": true, "requestedBy": payload.Actor.ID, "attempt": job.Attempts},
					Success:     false,
				})
				return nil, jobs.ErrCancelled
			case err != nil:
				return nil, err
			}

			s.record(ctx, audit.Entry{
				Action:      audit.ActionTaxCompute,
				SubjectType: audit.SubjectPayrollRun,
				SubjectID:   payload.RunID,
				Actor:       audit.SystemActor,
				Meta: map[string]any{
					"requestedBy": payload.Actor.ID,
					"records":     summary.Records,
					"totalGross":  summary.TotalGross.StringFixed(2),
					"totalTaxes":  summary.TotalTaxes.StringFixed(2),
					"totalNet":    summary.TotalNet.StringFixed(2),
					"warnings":    summary.Warnings,
					"attempt":     job.Attempts,
				},
				Success: true,
			})
			s.notify(ctx, notifications.Input{
				UserID:   payload.Actor.ID,
				Type:     notifications.TypePayrollTaxCompleted,
				Title:    "Payroll taxes computed",
				Body:     fmt.Sprintf("Taxes for payroll run %s are ready: %d records, net %s.", payload.RunID, summary.Records, summary.TotalNet.StringFixed(2)),
				Severity: notifications.SeveritySuccess,
				Meta:     map[string]any{"runId": payload.RunID, "records": summary.Records},
			})
			return summary, nil
		},
		OnFailure: func(ctx context.Context, job jobs.Job, err error) {
			var payload TaxJobPayload
			if decodeErr := job.Decode(&payload); decodeErr != nil || payload.RunID == "" {
				payload.RunID = job.SubjectID
			}
			ctx = requestctx.WithRequestID(ctx, payload.RequestID)
			s.reportTaxFailure(ctx, payload.RunID, payload.Actor, err, errors.Is(err, jobs.ErrTimedOut))
		},
	}
}

// reportTaxFailure leaves records untouched and flags the run so the failure is visible without the job table.
func (s *Service) reportTaxFailure(ctx context.Context, runID string, requestedBy audit.Actor, cause error, timedOut bool) {
	if _, err := s.store.UpdateRun(ctx, runID, func(r *Run) error {
		if r.Status == RunStatusPosted && r.TaxStatus != TaxStatusCompleted {
			r.TaxStatus = TaxStatusFailed
			r.TaxError = cause.Error()
		}
		return nil
	}); err != nil {
		slog.Warn("tax failure status update failed", "runId", runID, "err", err)
	}

	s.record(ctx, audit.Entry{
		Action:      audit.ActionTaxCompute,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   runID,
		Actor:       audit.SystemActor,
		Meta:        map[string]any{"error": cause.Error(), "timedOut": timedOut, "requestedBy": requestedBy.ID},
		Success:     false,
	})
	title := "Payroll tax computation failed"
	if timedOut {
		title = "Payroll tax computation timed out"
	}
	s.notify(ctx, notifications.Input{
		UserID:   requestedBy.ID,
		Type:     notifications.TypePayrollTaxFailed,
		Title:    title,
		Body:     fmt.Sprintf("Taxes for payroll run %s could not be computed: %v", runID, cause),
		Severity: notifications.SeverityError,
		Meta:     map[string]any{"runId": runID, "timedOut": timedOut},
	})
}
