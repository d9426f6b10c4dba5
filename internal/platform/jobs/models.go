package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	// ErrCancelled is returned by a handler that found its subject no longer wants the work done.
	ErrCancelled   = errors.New("job cancelled")
	ErrTimedOut    = errors.New("job timed out")
	ErrNoHandler   = errors.New("no handler registered for job kind")
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidKind = errors.New("job kind is required")
	errInterrupted = errors.New("interrupted by shutdown")
)

type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	SubjectID   string          `json:"subjectId"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LastError   string          `json:"lastError,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	RunAfter    time.Time       `json:"runAfter"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Handler runs one kind of job. Run's details are stored with a completed job.
// OnFailure is called once when the job reaches the failed state.
type Handler struct {
	Run       func(ctx context.Context, job Job) (any, error)
	OnFailure func(ctx context.Context, job Job, err error)
	Retryable func(err error) bool
	Timeout   time.Duration
}
