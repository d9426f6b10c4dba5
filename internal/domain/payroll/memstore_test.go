package payroll

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process StoreAPI. Per-run mutexes stand in for SELECT ... FOR UPDATE.
type MemStore struct {
	mu       sync.Mutex
	periods  map[string]PayPeriod
	runs     map[string]Run
	records  map[string][]Record
	runLocks map[string]*sync.Mutex
	seq      int
}

func NewMemStore() *MemStore {
	return &MemStore{
		periods:  map[string]PayPeriod{},
		runs:     map[string]Run{},
		records:  map[string][]Record{},
		runLocks: map[string]*sync.Mutex{},
	}
}

func (m *MemStore) CreatePeriod(_ context.Context, in PeriodInput, _ string) (PayPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.Frequency == in.Frequency && !p.StartDate.After(in.EndDate) && !p.EndDate.Before(in.StartDate) {
			return PayPeriod{}, ErrPeriodOverlap
		}
	}
	period := PayPeriod{
		ID:        uuid.NewString(),
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Frequency: in.Frequency,
		PayDate:   in.PayDate,
		CreatedAt: time.Now().UTC(),
	}
	m.periods[period.ID] = period
	return period, nil
}

func (m *MemStore) GetPeriod(_ context.Context, id string) (PayPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return PayPeriod{}, ErrPeriodNotFound
	}
	return p, nil
}

func (m *MemStore) ListPeriods(_ context.Context, limit, offset int) ([]PayPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PayPeriod, 0, len(m.periods))
	for _, p := range m.periods {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return page(out, limit, offset), nil
}

func (m *MemStore) OverlappingPeriodExists(_ context.Context, frequency string, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.Frequency == frequency && !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) ActiveRunForPeriod(_ context.Context, periodID string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRun(periodID)
}

func (m *MemStore) activeRun(periodID string) (Run, error) {
	for _, r := range m.runs {
		if r.PeriodID == periodID && r.Status != RunStatusVoided {
			return r, nil
		}
	}
	return Run{}, ErrRunNotFound
}

func (m *MemStore) InsertRun(_ context.Context, periodID, createdBy string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.activeRun(periodID); err == nil {
		return Run{}, errActiveRunExists
	}
	m.seq++
	now := time.Now().UTC().Add(time.Duration(m.seq) * time.Microsecond)
	run := Run{
		ID:        uuid.NewString(),
		PeriodID:  periodID,
		Status:    RunStatusDraft,
		TaxStatus: TaxStatusNotStarted,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.runs[run.ID] = run
	m.runLocks[run.ID] = &sync.Mutex{}
	period := m.periods[periodID]
	period.Closed = true
	m.periods[periodID] = period
	return run, nil
}

func (m *MemStore) GetRun(_ context.Context, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return r, nil
}

func (m *MemStore) ListRuns(_ context.Context, filter RunFilter) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if filter.PeriodID != "" && r.PeriodID != filter.PeriodID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *MemStore) lock(id string) (func(), error) {
	m.mu.Lock()
	l, ok := m.runLocks[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrRunNotFound
	}
	l.Lock()
	return l.Unlock, nil
}

func (m *MemStore) UpdateRun(ctx context.Context, id string, fn func(*Run) error) (Run, error) {
	unlock, err := m.lock(id)
	if err != nil {
		return Run{}, err
	}
	defer unlock()
	run, err := m.GetRun(ctx, id)
	if err != nil {
		return Run{}, err
	}
	if err := fn(&run); err != nil {
		return Run{}, err
	}
	run.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.runs[id] = run
	m.mu.Unlock()
	return run, nil
}

func (m *MemStore) ListRecords(_ context.Context, runID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.records[runID]), nil
}

func (m *MemStore) InsertRecords(ctx context.Context, runID string, records []Record) ([]Record, error) {
	unlock, err := m.lock(runID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs[runID].Status != RunStatusDraft {
		return nil, ErrRecordsFrozen
	}
	existing := map[string]bool{}
	for _, rec := range m.records[runID] {
		existing[rec.EmployeeID] = true
	}
	created := make([]Record, 0, len(records))
	for _, rec := range records {
		if existing[rec.EmployeeID] {
			return nil, ErrDuplicateEmployee
		}
		existing[rec.EmployeeID] = true
		rec.ID = uuid.NewString()
		rec.RunID = runID
		rec.CreatedAt = time.Now().UTC()
		if rec.Warnings == nil {
			rec.Warnings = []string{}
		}
		created = append(created, rec)
	}
	all := append(m.records[runID], created...)
	sort.Slice(all, func(i, j int) bool { return all[i].EmployeeID < all[j].EmployeeID })
	m.records[runID] = all
	return cloneRecords(created), nil
}

func (m *MemStore) ApplyTaxResults(ctx context.Context, runID string, fn TaxApplyFunc) (Run, []Record, error) {
	unlock, err := m.lock(runID)
	if err != nil {
		return Run{}, nil, err
	}
	defer unlock()

	m.mu.Lock()
	run := m.runs[runID]
	period := m.periods[run.PeriodID]
	records := cloneRecords(m.records[runID])
	m.mu.Unlock()

	results, err := fn(run, period, records)
	if err != nil {
		return Run{}, nil, err
	}
	if err := ctx.Err(); err != nil {
		return Run{}, nil, err
	}

	now := time.Now().UTC()
	run.TaxStatus = TaxStatusCompleted
	run.TaxError = ""
	run.TaxComputedAt = &now
	run.UpdatedAt = now
	m.mu.Lock()
	m.runs[runID] = run
	m.records[runID] = cloneRecords(results)
	m.mu.Unlock()
	return run, results, nil
}

// RunsForPeriod reports every run ever created for the period, voided ones included.
func (m *MemStore) RunsForPeriod(periodID string) []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if r.PeriodID == periodID {
			out = append(out, r)
		}
	}
	return out
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	copy(out, in)
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
