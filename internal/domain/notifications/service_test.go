package notifications

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receipt struct {
	read    bool
	deleted bool
}

type memoryStore struct {
	mu       sync.Mutex
	now      time.Time
	items    []Notification
	receipts map[string]map[string]*receipt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		now:      time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC),
		receipts: map[string]map[string]*receipt{},
	}
}

func (m *memoryStore) Insert(_ context.Context, n Notification) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(time.Minute)
	n.ID = uuid.NewString()
	n.CreatedAt = m.now
	m.items = append(m.items, n)
	return n, nil
}

func (m *memoryStore) view(userID string, n Notification) (Notification, bool) {
	if n.UserID != nil {
		if *n.UserID != userID {
			return Notification{}, false
		}
		return n, true
	}
	r := m.receipts[n.ID][userID]
	if r != nil && r.deleted {
		return Notification{}, false
	}
	n.Read = r != nil && r.read
	return n, true
}

func (m *memoryStore) ListForUser(_ context.Context, userID string, filter ListFilter) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Notification{}
	for _, item := range m.items {
		n, ok := m.view(userID, item)
		if !ok {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		if filter.Since != nil && n.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	items, err := m.ListForUser(ctx, userID, ListFilter{UnreadOnly: true, Limit: 1 << 20})
	return len(items), err
}

func (m *memoryStore) receiptFor(id, userID string) *receipt {
	if m.receipts[id] == nil {
		m.receipts[id] = map[string]*receipt{}
	}
	if m.receipts[id][userID] == nil {
		m.receipts[id][userID] = &receipt{}
	}
	return m.receipts[id][userID]
}

func (m *memoryStore) find(userID, id string) (int, bool) {
	for i, item := range m.items {
		if item.ID != id {
			continue
		}
		if _, ok := m.view(userID, item); ok {
			return i, true
		}
	}
	return -1, false
}

func (m *memoryStore) MarkRead(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(userID, id)
	if !ok {
		return ErrNotFound
	}
	if m.items[i].UserID == nil {
		m.receiptFor(id, userID).read = true
		return nil
	}
	m.items[i].Read = true
	return nil
}

func (m *memoryStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for i, item := range m.items {
		n, ok := m.view(userID, item)
		if !ok || n.Read {
			continue
		}
		if item.UserID == nil {
			m.receiptFor(item.ID, userID).read = true
		} else {
			m.items[i].Read = true
		}
		count++
	}
	return count, nil
}

func (m *memoryStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(userID, id)
	if !ok {
		return ErrNotFound
	}
	if m.items[i].UserID == nil {
		m.receiptFor(id, userID).deleted = true
		return nil
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (r *recordingMailer) Send(_ context.Context, _, _, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	if r.fail {
		return errors.New("smtp down")
	}
	return nil
}

func TestNotifyValidatesInput(t *testing.T) {
	svc := New(newMemoryStore(), nil)
	ctx := context.Background()

	_, err := svc.Notify(ctx, Input{UserID: "u1", Title: "x", Severity: "critical"})
	require.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = svc.Notify(ctx, Input{UserID: "u1", Title: "  ", Severity: SeverityInfo})
	require.ErrorIs(t, err, ErrTitleRequired)

	n, err := svc.Notify(ctx, Input{UserID: "u1", Title: "Run posted", Severity: "SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, SeveritySuccess, n.Severity)
	assert.False(t, n.Broadcast())
}

func TestAlertsMailedForWarningsOnly(t *testing.T) {
	mailer := &recordingMailer{fail: true}
	svc := New(newMemoryStore(), mailer)
	svc.AlertTo = "ops@example.com"
	ctx := context.Background()

	_, err := svc.Notify(ctx, Input{Title: "Run voided", Severity: SeverityWarning})
	require.NoError(t, err, "mail failure must not fail the notification")
	_, err = svc.Notify(ctx, Input{UserID: "u1", Title: "Taxes computed", Severity: SeveritySuccess})
	require.NoError(t, err)

	assert.Equal(t, []string{"[WARNING] Run voided"}, mailer.subjects)
}

func TestAcknowledgeAndListFilters(t *testing.T) {
	store := newMemoryStore()
	svc := New(store, nil)
	ctx := context.Background()

	first, err := svc.Notify(ctx, Input{UserID: "u1", Title: "one", Severity: SeverityInfo})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, Input{UserID: "u1", Title: "two", Severity: SeverityError})
	require.NoError(t, err)
	_, err = svc.Notify(ctx, Input{UserID: "u2", Title: "other user", Severity: SeverityInfo})
	require.NoError(t, err)

	require.NoError(t, svc.Acknowledge(ctx, "u1", first.ID))

	unread, err := svc.List(ctx, "u1", ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "two", unread[0].Title)

	since := first.CreatedAt.Add(time.Second)
	recent, err := svc.List(ctx, "u1", ListFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)

	limited, err := svc.List(ctx, "u1", ListFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "two", limited[0].Title, "newest first")

	err = svc.Acknowledge(ctx, "u2", first.ID)
	require.ErrorIs(t, err, ErrNotFound, "users cannot ack notifications they do not own")

	err = svc.Acknowledge(ctx, "u1", "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBroadcastStateIsPerUser(t *testing.T) {
	svc := New(newMemoryStore(), nil)
	ctx := context.Background()

	broadcast, err := svc.Notify(ctx, Input{Title: "Run voided", Severity: SeverityWarning})
	require.NoError(t, err)
	assert.True(t, broadcast.Broadcast())

	require.NoError(t, svc.Delete(ctx, "u1", broadcast.ID))

	forU1, err := svc.List(ctx, "u1", ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, forU1)

	forU2, err := svc.List(ctx, "u2", ListFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, forU2, 1)

	acked, err := svc.AcknowledgeAll(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, acked)

	unread, err := svc.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, unread)
}
