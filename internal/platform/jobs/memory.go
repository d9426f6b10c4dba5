package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process. It backs unit tests and single-process tooling that has no database.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: map[string]*Job{}}
}

func (m *MemoryStore) Insert(_ context.Context, job Job) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.Status = StatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	stored := job
	m.jobs[job.ID] = &stored
	return job, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

func (m *MemoryStore) Claim(_ context.Context, now time.Time) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*Job
	for _, job := range m.jobs {
		if job.Status == StatusQueued && !job.RunAfter.After(now) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return Job{}, false, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAfter.Equal(due[j].RunAfter) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].RunAfter.Before(due[j].RunAfter)
	})
	job := due[0]
	started := time.Now().UTC()
	job.Status = StatusRunning
	job.Attempts++
	job.StartedAt = &started
	job.UpdatedAt = started
	return *job, true, nil
}

func (m *MemoryStore) Complete(_ context.Context, id string, details []byte) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusCompleted
		job.Details = details
		job.LastError = ""
		m.finish(job)
	})
}

func (m *MemoryStore) Retry(_ context.Context, id, lastErr string, runAfter time.Time) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusQueued
		job.LastError = lastErr
		job.RunAfter = runAfter
	})
}

func (m *MemoryStore) Fail(_ context.Context, id, lastErr string) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusFailed
		job.LastError = lastErr
		m.finish(job)
	})
}

func (m *MemoryStore) MarkCancelled(_ context.Context, id, reason string) error {
	return m.update(id, func(job *Job) {
		job.Status = StatusCancelled
		job.LastError = reason
		m.finish(job)
	})
}

func (m *MemoryStore) CancelQueued(_ context.Context, kind, subjectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.Kind == kind && job.SubjectID == subjectID && job.Status == StatusQueued {
			job.Status = StatusCancelled
			job.LastError = "cancelled before start"
			m.finish(job)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) RequeueStale(_ context.Context, startedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.jobs {
		if job.Status == StatusRunning && job.StartedAt != nil && job.StartedAt.Before(startedBefore) {
			job.Status = StatusQueued
			job.LastError = "requeued after stale run"
			job.RunAfter = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of every job, oldest first.
func (m *MemoryStore) All() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) finish(job *Job) {
	now := time.Now().UTC()
	job.FinishedAt = &now
}
