package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/notifications"
	"clinic/internal/platform/metrics"
	"clinic/internal/requestctx"
)

type Deps struct {
	TaxConfigs TaxConfigSource
	Directory  EmployeeDirectory
	Audit      AuditLog
	Notifier   Notifier
	Jobs       Scheduler
	Metrics    *metrics.Collector
	TaxTimeout time.Duration
}

type Service struct {
	store      StoreAPI
	taxConfigs TaxConfigSource
	directory  EmployeeDirectory
	audit      AuditLog
	notifier   Notifier
	jobs       Scheduler
	metrics    *metrics.Collector
	taxTimeout time.Duration

	creates singleflight.Group
	Now     func() time.Time
}

func NewService(store StoreAPI, deps Deps) *Service {
	return &Service{
		store:      store,
		taxConfigs: deps.TaxConfigs,
		directory:  deps.Directory,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		jobs:       deps.Jobs,
		metrics:    deps.Metrics,
		taxTimeout: deps.TaxTimeout,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreatePeriod(ctx context.Context, actor audit.Actor, in PeriodInput) (PayPeriod, error) {
	in.Frequency = strings.ToLower(strings.TrimSpace(in.Frequency))
	in.StartDate = dateOnly(in.StartDate)
	in.EndDate = dateOnly(in.EndDate)
	if in.PayDate.IsZero() {
		in.PayDate = in.EndDate
	}
	in.PayDate = dateOnly(in.PayDate)
	meta := map[string]any{
		"startDate": in.StartDate.Format(time.DateOnly),
		"endDate":   in.EndDate.Format(time.DateOnly),
		"frequency": in.Frequency,
		"payDate":   in.PayDate.Format(time.DateOnly),
	}

	period, err := s.createPeriod(ctx, actor, in)
	if err != nil {
		meta["error"] = err.Error()
	}
	s.record(ctx, audit.Entry{
		Action:      audit.ActionPeriodCreate,
		SubjectType: audit.SubjectPayPeriod,
		SubjectID:   period.ID,
		Actor:       actor,
		Meta:        meta,
		After:       afterOrNil(err, period),
		Success:     err == nil,
	})
	return period, err
}

func (s *Service) createPeriod(ctx context.Context, actor audit.Actor, in PeriodInput) (PayPeriod, error) {
	switch {
	case !validFrequency(in.Frequency):
		return PayPeriod{}, ErrInvalidFrequency
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return PayPeriod{}, fmt.Errorf("%w: start and end dates are required", ErrValidation)
	case in.EndDate.Before(in.StartDate):
		return PayPeriod{}, ErrInvalidPeriodRange
	case in.PayDate.Before(in.StartDate):
		return PayPeriod{}, ErrInvalidPayDate
	}
	overlap, err := s.store.OverlappingPeriodExists(ctx, in.Frequency, in.StartDate, in.EndDate)
	if err != nil {
		return PayPeriod{}, err
	}
	if overlap {
		return PayPeriod{}, ErrPeriodOverlap
	}
	return s.store.CreatePeriod(ctx, in, actor.ID)
}

func (s *Service) GetPeriod(ctx context.Context, id string) (PayPeriod, error) {
	return s.store.GetPeriod(ctx, id)
}

func (s *Service) ListPeriods(ctx context.Context, limit, offset int) ([]PayPeriod, error) {
	limit, offset = clampPage(limit, offset)
	return s.store.ListPeriods(ctx, limit, offset)
}

type createResult struct {
	run     Run
	created bool
}

// CreateOrGetRun returns the period's active run, creating a draft when there is none.
// Concurrent calls in this process share one lookup; across processes the partial unique index decides.
func (s *Service) CreateOrGetRun(ctx context.Context, actor audit.Actor, periodID string) (Run, bool, error) {
	executed := false
	v, err, _ := s.creates.Do(periodID, func() (any, error) {
		executed = true
		run, created, err := s.createOrGetRun(ctx, actor, periodID)
		return createResult{run: run, created: created}, err
	})
	if err != nil {
		return Run{}, false, err
	}
	res := v.(createResult)
	return res.run, res.created && executed, nil
}

func (s *Service) createOrGetRun(ctx context.Context, actor audit.Actor, periodID string) (Run, bool, error) {
	fail := func(err error) (Run, bool, error) {
		s.record(ctx, audit.Entry{
			Action:      audit.ActionRunCreate,
			SubjectType: audit.SubjectPayrollRun,
			Actor:       actor,
			Meta:        map[string]any{"periodId": periodID, "error": err.Error()},
			Success:     false,
		})
		return Run{}, false, err
	}

	if _, err := s.store.GetPeriod(ctx, periodID); err != nil {
		return fail(err)
	}
	existing, err := s.store.ActiveRunForPeriod(ctx, periodID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrRunNotFound) {
		return fail(err)
	}

	run, err := s.store.InsertRun(ctx, periodID, actor.ID)
	if errors.Is(err, errActiveRunExists) {
		existing, err := s.store.ActiveRunForPeriod(ctx, periodID)
		if err != nil {
			return fail(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return fail(err)
	}

	s.record(ctx, audit.Entry{
		Action:      audit.ActionRunCreate,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   run.ID,
		Actor:       actor,
		Meta:        map[string]any{"periodId": periodID},
		After:       run,
		Success:     true,
	})
	return run, true, nil
}

func (s *Service) GetRun(ctx context.Context, id string) (RunDetail, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return RunDetail{}, err
	}
	period, err := s.store.GetPeriod(ctx, run.PeriodID)
	if err != nil {
		return RunDetail{}, err
	}
	records, err := s.store.ListRecords(ctx, run.ID)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: run, Period: period, Records: records}, nil
}

func (s *Service) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	if filter.Status != "" && filter.Status != RunStatusDraft && filter.Status != RunStatusPosted && filter.Status != RunStatusVoided {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.store.ListRuns(ctx, filter)
}

// SeedRecords bulk-loads records into a draft run. Earnings and deduction amounts are fixed here; taxes wait for posting.
func (s *Service) SeedRecords(ctx context.Context, actor audit.Actor, runID string, inputs []RecordInput) ([]Record, error) {
	created, err := s.seedRecords(ctx, runID, inputs)
	meta := map[string]any{"records": len(inputs)}
	if err != nil {
		meta["error"] = err.Error()
	}
	s.record(ctx, audit.Entry{
		Action:      audit.ActionRunSeed,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   runID,
		Actor:       actor,
		Meta:        meta,
		Success:     err == nil,
	})
	return created, err
}

func (s *Service) seedRecords(ctx context.Context, runID string, inputs []RecordInput) ([]Record, error) {
	if len(inputs) == 0 {
		return nil, ErrNoRecords
	}
	seen := map[string]bool{}
	ids := make([]string, 0, len(inputs))
	for i, in := range inputs {
		if err := validateRecordInput(in); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if seen[in.EmployeeID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmployee, in.EmployeeID)
		}
		seen[in.EmployeeID] = true
		ids = append(ids, in.EmployeeID)
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != RunStatusDraft {
		return nil, ErrRecordsFrozen
	}

	known, err := s.directory.GetEmployees(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: employee directory: %v", ErrDependency, err)
	}
	records := make([]Record, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := known[in.EmployeeID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEmployee, in.EmployeeID)
		}
		rec := Record{
			EmployeeID:    strings.TrimSpace(in.EmployeeID),
			HourlyRate:    in.HourlyRate,
			RegularHours:  in.RegularHours,
			OvertimeHours: in.OvertimeHours,
			BonusPay:      cents(in.BonusPay),
		}
		rec.RegularPay, rec.OvertimePay, rec.GrossPay = Earnings(in.HourlyRate, in.RegularHours, in.OvertimeHours, in.BonusPay)
		rec.Deductions, _, _ = ResolveDeductions(rec.GrossPay, in.Deductions)
		records = append(records, rec)
	}
	return s.store.InsertRecords(ctx, runID, records)
}

func validateRecordInput(in RecordInput) error {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidRecord)
	}
	if in.HourlyRate.IsNegative() || in.RegularHours.IsNegative() || in.OvertimeHours.IsNegative() || in.BonusPay.IsNegative() {
		return fmt.Errorf("%w: rate, hours and bonus must not be negative", ErrInvalidRecord)
	}
	for _, d := range in.Deductions {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// PostRun freezes a draft run and queues tax computation. A failure to queue is reported, and the post still stands.
func (s *Service) PostRun(ctx context.Context, actor audit.Actor, runID string) (Run, error) {
	var previous Run
	run, err := s.store.UpdateRun(ctx, runID, func(r *Run) error {
		previous = *r
		switch r.Status {
		case RunStatusDraft:
		case RunStatusVoided:
			return ErrRunVoided
		default:
			return ErrRunNotDraft
		}
		now := s.Now()
		r.Status = RunStatusPosted
		r.PostedAt = &now
		r.PostedBy = actor.ID
		r.TaxStatus = TaxStatusPending
		r.TaxError = ""
		return nil
	})

	meta := map[string]any{}
	if err != nil {
		meta["error"] = err.Error()
	}
	s.record(ctx, audit.Entry{
		Action:      audit.ActionRunPost,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   runID,
		Actor:       actor,
		Meta:        meta,
		Before:      beforeOrNil(previous),
		After:       afterOrNil(err, run),
		Success:     err == nil,
	})
	if err != nil {
		return Run{}, err
	}

	payload := TaxJobPayload{RunID: run.ID, Actor: actor, RequestID: requestctx.GetRequestID(ctx)}
	if _, err := s.jobs.Enqueue(ctx, JobComputeTaxes, run.ID, payload); err != nil {
		slog.Warn("tax job enqueue failed", "runId", run.ID, "err", err)
		s.reportTaxFailure(ctx, run.ID, actor, fmt.Errorf("%w: schedule tax computation: %v", ErrDependency, err), false)
		if refreshed, getErr := s.store.GetRun(ctx, run.ID); getErr == nil {
			run = refreshed
		}
	}
	return run, nil
}

// VoidRun marks a draft or posted run voided. Queued tax work is cancelled. A computation already
// holding the run lock finishes first, and the void is applied after it.
func (s *Service) VoidRun(ctx context.Context, actor audit.Actor, runID, reason string) (Run, error) {
	reason = strings.TrimSpace(reason)
	var previous Run
	run, err := s.voidRun(ctx, actor, runID, reason, &previous)

	meta := map[string]any{"reason": reason}
	if err != nil {
		meta["error"] = err.Error()
	} else {
		meta["previousStatus"] = previous.Status
		meta["previousTaxStatus"] = previous.TaxStatus
		meta["priorExports"] = s.priorExports(ctx, runID)
	}
	s.record(ctx, audit.Entry{
		Action:      audit.ActionRunVoid,
		SubjectType: audit.SubjectPayrollRun,
		SubjectID:   runID,
		Actor:       actor,
		Meta:        meta,
		Before:      beforeOrNil(previous),
		After:       afterOrNil(err, run),
		Success:     err == nil,
	})
	if err != nil {
		return Run{}, err
	}

	s.notify(ctx, notifications.Input{
		Type:     notifications.TypePayrollRunVoided,
		Title:    "Payroll run voided",
		Body:     fmt.Sprintf("Payroll run %s was voided by %s: %s", run.ID, actor.Name, reason),
		Severity: notifications.SeverityWarning,
		Meta:     map[string]any{"runId": run.ID, "periodId": run.PeriodID, "reason": reason},
	})
	return run, nil
}

func (s *Service) voidRun(ctx context.Context, actor audit.Actor, runID, reason string, previous *Run) (Run, error) {
	if reason == "" {
		return Run{}, ErrVoidReasonRequired
	}
	run, err := s.store.UpdateRun(ctx, runID, func(r *Run) error {
		*previous = *r
		if r.Status == RunStatusVoided {
			return ErrRunVoided
		}
		now := s.Now()
		r.Status = RunStatusVoided
		r.VoidedAt = &now
		r.VoidedBy = actor.ID
		r.VoidReason = reason
		if r.TaxStatus == TaxStatusPending {
			r.TaxStatus = TaxStatusCancelled
		}
		return nil
	})
	if err != nil {
		return Run{}, err
	}
	if s.jobs != nil {
		if _, err := s.jobs.Cancel(ctx, JobComputeTaxes, run.ID); err != nil {
			slog.Warn("tax job cancel failed", "runId", run.ID, "err", err)
		}
	}
	return run, nil
}

func (s *Service) priorExports(ctx context.Context, runID string) int {
	if s.audit == nil {
		return 0
	}
	ok := true
	n, err := s.audit.Count(ctx, audit.Filter{ActionPrefix: audit.ActionPrefixExport, SubjectID: runID, Success: &ok})
	if err != nil {
		slog.Warn("prior export count failed", "runId", runID, "err", err)
		return 0
	}
	return n
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		slog.Warn("audit record failed", "action", entry.Action, "subjectId", entry.SubjectID, "err", err)
	}
}

func (s *Service) notify(ctx context.Context, in notifications.Input) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, in); err != nil {
		slog.Warn("notification emit failed", "type", in.Type, "err", err)
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func afterOrNil(err error, value any) any {
	if err != nil {
		return nil
	}
	return value
}

func beforeOrNil(run Run) any {
	if run.ID == "" {
		return nil
	}
	return run
}
