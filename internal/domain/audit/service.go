package audit

import (
	"context"
	"encoding/json"
	"strings"

	"clinic/internal/requestctx"
)

type Service struct {
	store StoreAPI
}

func New(store StoreAPI) *Service {
	return &Service{store: store}
}

// Record appends one event. Request id and client ip are taken from ctx when present.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Action) == "" || strings.TrimSpace(entry.SubjectType) == "" {
		return ErrInvalidEntry
	}
	before, err := marshalSnapshot(entry.Before)
	if err != nil {
		return err
	}
	after, err := marshalSnapshot(entry.After)
	if err != nil {
		return err
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	_, err = s.store.Insert(ctx, Event{
		Action:      entry.Action,
		SubjectType: entry.SubjectType,
		SubjectID:   entry.SubjectID,
		User:        entry.Actor,
		Meta:        meta,
		Success:     entry.Success,
		RequestID:   requestctx.GetRequestID(ctx),
		IP:          requestctx.GetClientIP(ctx),
		Before:      before,
		After:       after,
	})
	return err
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, ErrInvalidFilter
	}
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	return s.store.Count(ctx, filter)
}

func (s *Service) Actions(ctx context.Context) ([]string, error) {
	return s.store.DistinctActions(ctx)
}

func (s *Service) SubjectTypes(ctx context.Context) ([]string, error) {
	return s.store.DistinctSubjectTypes(ctx)
}

func marshalSnapshot(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return payload, nil
}
