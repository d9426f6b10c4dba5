package jobs

import (
	"context"
	"time"
)

type StoreAPI interface {
	Insert(ctx context.Context, job Job) (Job, error)
	Get(ctx context.Context, id string) (Job, error)
	// Claim moves the oldest due queued job to running and increments its attempts.
	Claim(ctx context.Context, now time.Time) (Job, bool, error)
	Complete(ctx context.Context, id string, details []byte) error
	Retry(ctx context.Context, id, lastErr string, runAfter time.Time) error
	Fail(ctx context.Context, id, lastErr string) error
	MarkCancelled(ctx context.Context, id, reason string) error
	CancelQueued(ctx context.Context, kind, subjectID string) (int, error)
	RequeueStale(ctx context.Context, startedBefore time.Time) (int, error)
}
