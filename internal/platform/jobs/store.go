package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, kind, subject_id, payload, status, attempts, max_attempts, COALESCE(last_error, ''),
    details_json, run_after, started_at, finished_at, created_at, updated_at`

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Insert(ctx context.Context, job Job) (Job, error) {
	payload := []byte(job.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return scanJob(s.DB.QueryRow(ctx, `
    INSERT INTO jobs (kind, subject_id, payload, status, max_attempts, run_after)
    VALUES ($1,$2,$3,'queued',$4,$5)
    RETURNING `+jobColumns, job.Kind, job.SubjectID, payload, job.MaxAttempts, job.RunAfter))
}

func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Job{}, ErrJobNotFound
	}
	job, err := scanJob(s.DB.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

func (s *Store) Claim(ctx context.Context, now time.Time) (Job, bool, error) {
	job, err := scanJob(s.DB.QueryRow(ctx, `
    UPDATE jobs
    SET status = 'running', attempts = attempts + 1, started_at = now(), updated_at = now()
    WHERE id = (
      SELECT id FROM jobs
      WHERE status = 'queued' AND run_after <= $1
      ORDER BY run_after, created_at
      FOR UPDATE SKIP LOCKED
      LIMIT 1
    )
    RETURNING `+jobColumns, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

func (s *Store) Complete(ctx context.Context, id string, details []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'completed', details_json = $2, last_error = NULL, finished_at = now(), updated_at = now()
    WHERE id = $1
  `, id, details)
	return err
}

func (s *Store) Retry(ctx context.Context, id, lastErr string, runAfter time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'queued', last_error = $2, run_after = $3, updated_at = now()
    WHERE id = $1
  `, id, lastErr, runAfter)
	return err
}

func (s *Store) Fail(ctx context.Context, id, lastErr string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'failed', last_error = $2, finished_at = now(), updated_at = now()
    WHERE id = $1
  `, id, lastErr)
	return err
}

func (s *Store) MarkCancelled(ctx context.Context, id, reason string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'cancelled', last_error = $2, finished_at = now(), updated_at = now()
    WHERE id = $1
  `, id, reason)
	return err
}

func (s *Store) CancelQueued(ctx context.Context, kind, subjectID string) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'cancelled', last_error = 'cancelled before start', finished_at = now(), updated_at = now()
    WHERE kind = $1 AND subject_id = $2 AND status = 'queued'
  `, kind, subjectID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) RequeueStale(ctx context.Context, startedBefore time.Time) (int, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE jobs
    SET status = 'queued', last_error = 'requeued after stale run', run_after = now(), updated_at = now()
    WHERE status = 'running' AND started_at < $1
  `, startedBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job              Job
		payload, details []byte
	)
	err := row.Scan(&job.ID, &job.Kind, &job.SubjectID, &payload, &job.Status, &job.Attempts, &job.MaxAttempts,
		&job.LastError, &details, &job.RunAfter, &job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return Job{}, err
	}
	job.Payload = payload
	job.Details = details
	return job, nil
}
