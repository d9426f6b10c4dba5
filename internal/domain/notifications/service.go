package notifications

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
	AlertTo     string
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{store: store, Mailer: mailer, DefaultFrom: "no-reply@example.com"}
}

func (s *Service) Notify(ctx context.Context, in Input) (Notification, error) {
	severity := strings.ToLower(strings.TrimSpace(in.Severity))
	if !validSeverity(severity) {
		return Notification{}, ErrInvalidSeverity
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Notification{}, ErrTitleRequired
	}
	meta := in.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	var userID *string
	if id := strings.TrimSpace(in.UserID); id != "" {
		userID = &id
	}

	created, err := s.store.Insert(ctx, Notification{
		UserID:   userID,
		Type:     in.Type,
		Title:    title,
		Body:     in.Body,
		Severity: severity,
		Meta:     meta,
	})
	if err != nil {
		return Notification{}, err
	}

	s.alert(ctx, created)
	return created, nil
}

// alert mails warning and error notifications to the operations inbox.
func (s *Service) alert(ctx context.Context, n Notification) {
	if s.Mailer == nil || s.AlertTo == "" {
		return
	}
	if n.Severity != SeverityError && n.Severity != SeverityWarning {
		return
	}
	subject := "[" + strings.ToUpper(n.Severity) + "] " + n.Title
	if err := s.Mailer.Send(ctx, s.DefaultFrom, s.AlertTo, subject, n.Body); err != nil {
		slog.Warn("notification email send failed", "notificationId", n.ID, "err", err)
	}
}

func (s *Service) List(ctx context.Context, userID string, filter ListFilter) ([]Notification, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	return s.store.ListForUser(ctx, userID, filter)
}

func (s *Service) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) Acknowledge(ctx context.Context, userID, notificationID string) error {
	if _, err := uuid.Parse(notificationID); err != nil {
		return ErrNotFound
	}
	return s.store.MarkRead(ctx, userID, notificationID)
}

func (s *Service) AcknowledgeAll(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	if _, err := uuid.Parse(notificationID); err != nil {
		return ErrNotFound
	}
	return s.store.Delete(ctx, userID, notificationID)
}

func validSeverity(value string) bool {
	for _, candidate := range Severities {
		if value == candidate {
			return true
		}
	}
	return false
}
