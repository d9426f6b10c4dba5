package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"clinic/internal/platform/config"
	"clinic/internal/platform/metrics"
)

type Options struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Workers:      cfg.JobWorkers,
		PollInterval: cfg.JobPollInterval,
		MaxAttempts:  cfg.JobMaxAttempts,
		StaleAfter:   cfg.JobStaleAfter,
		BackoffBase:  cfg.JobBackoffBase,
		BackoffMax:   cfg.JobBackoffMax,
	}
}

// Service is a durable queue. Jobs live in the store and workers claim them, so a crash loses no work.
type Service struct {
	store   StoreAPI
	opts    Options
	metrics *metrics.Collector

	mu       sync.RWMutex
	handlers map[string]Handler

	wake chan struct{}
	wg   sync.WaitGroup
	Now  func() time.Time
}

func New(store StoreAPI, opts Options, collector *metrics.Collector) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Service{
		store:    store,
		opts:     opts,
		metrics:  collector,
		handlers: map[string]Handler{},
		wake:     make(chan struct{}, 128),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Register(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *Service) handler(kind string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

func (s *Service) Enqueue(ctx context.Context, kind, subjectID string, payload any) (Job, error) {
	if strings.TrimSpace(kind) == "" {
		return Job{}, ErrInvalidKind
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal job payload: %w", err)
	}
	job, err := s.store.Insert(ctx, Job{
		Kind:        kind,
		SubjectID:   subjectID,
		Payload:     raw,
		MaxAttempts: s.opts.MaxAttempts,
		RunAfter:    s.Now(),
	})
	if err != nil {
		return Job{}, err
	}
	select {
	case s.wake <- struct{}{}:
	default:
		slog.Warn("job queue full", "kind", kind, "jobId", job.ID)
	}
	return job, nil
}

// Cancel marks every queued job of kind for subjectID cancelled. Running jobs are left to finish.
func (s *Service) Cancel(ctx context.Context, kind, subjectID string) (int, error) {
	return s.store.CancelQueued(ctx, kind, subjectID)
}

func (s *Service) Get(ctx context.Context, id string) (Job, error) {
	return s.store.Get(ctx, id)
}

// Start requeues jobs abandoned by a crashed worker and launches the worker pool. Workers stop when ctx ends.
func (s *Service) Start(ctx context.Context) {
	if s.opts.StaleAfter > 0 {
		n, err := s.store.RequeueStale(ctx, s.Now().Add(-s.opts.StaleAfter))
		if err != nil {
			slog.Warn("stale job requeue failed", "err", err)
		} else if n > 0 {
			slog.Info("requeued stale jobs", "count", n)
		}
	}
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
}

// Wait blocks until every worker started by Start has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		s.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

func (s *Service) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := s.ProcessNext(ctx)
		if err != nil {
			slog.Warn("job claim failed", "err", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and runs one due job. It reports false when nothing was due.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	job, ok, err := s.store.Claim(ctx, s.Now())
	if err != nil || !ok {
		return false, err
	}
	s.run(ctx, job)
	return true, nil
}

func (s *Service) run(ctx context.Context, job Job) {
	started := time.Now()
	// Bookkeeping must land even when the worker is shutting down.
	bookCtx := context.WithoutCancel(ctx)

	h, ok := s.handler(job.Kind)
	if !ok {
		s.finishFailed(bookCtx, job, Handler{}, ErrNoHandler, started)
		return
	}

	details, err := s.invoke(ctx, h, job)
	switch {
	case err == nil:
		payload, marshalErr := json.Marshal(details)
		if marshalErr != nil {
			slog.Warn("job details marshal failed", "jobId", job.ID, "err", marshalErr)
			payload = []byte("{}")
		}
		if err := s.store.Complete(bookCtx, job.ID, payload); err != nil {
			slog.Warn("job complete update failed", "jobId", job.ID, "err", err)
		}
		s.metrics.RecordJob(job.Kind, StatusCompleted, time.Since(started))
	case errors.Is(err, ErrCancelled):
		if err := s.store.MarkCancelled(bookCtx, job.ID, err.Error()); err != nil {
			slog.Warn("job cancel update failed", "jobId", job.ID, "err", err)
		}
		s.metrics.RecordJob(job.Kind, StatusCancelled, time.Since(started))
	case errors.Is(err, errInterrupted):
		if err := s.store.Retry(bookCtx, job.ID, err.Error(), s.Now()); err != nil {
			slog.Warn("job requeue failed", "jobId", job.ID, "err", err)
		}
		s.metrics.RecordJob(job.Kind, "interrupted", time.Since(started))
	case !errors.Is(err, ErrTimedOut) && h.Retryable != nil && h.Retryable(err) && job.Attempts < job.MaxAttempts:
		delay := Backoff(job.Attempts, s.opts.BackoffBase, s.opts.BackoffMax)
		if err := s.store.Retry(bookCtx, job.ID, err.Error(), s.Now().Add(delay)); err != nil {
			slog.Warn("job retry update failed", "jobId", job.ID, "err", err)
		}
		slog.Warn("job failed, retrying", "kind", job.Kind, "jobId", job.ID, "attempt", job.Attempts, "delay", delay, "err", err)
		s.metrics.RecordJob(job.Kind, "retried", time.Since(started))
	default:
		s.finishFailed(bookCtx, job, h, err, started)
	}
}

// invoke runs the handler under its timeout and converts panics into errors.
func (s *Service) invoke(ctx context.Context, h Handler, job Job) (details any, err error) {
	runCtx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			details, err = nil, fmt.Errorf("job panicked: %v", rec)
		}
	}()

	details, err = h.Run(runCtx, job)
	if err == nil {
		return details, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", errInterrupted, err)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s: %v", ErrTimedOut, h.Timeout, err)
	}
	return nil, err
}

func (s *Service) finishFailed(ctx context.Context, job Job, h Handler, err error, started time.Time) {
	if updErr := s.store.Fail(ctx, job.ID, err.Error()); updErr != nil {
		slog.Warn("job fail update failed", "jobId", job.ID, "err", updErr)
	}
	slog.Warn("job failed", "kind", job.Kind, "jobId", job.ID, "attempts", job.Attempts, "err", err)
	s.metrics.RecordJob(job.Kind, StatusFailed, time.Since(started))
	if h.OnFailure != nil {
		h.OnFailure(ctx, job, err)
	}
}
