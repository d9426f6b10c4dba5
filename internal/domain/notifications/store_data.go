package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const visibleToUser = `
    FROM notifications n
    LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $1
    WHERE (n.user_id = $1 OR (n.user_id IS NULL AND r.deleted_at IS NULL))`

func (s *Store) Insert(ctx context.Context, n Notification) (Notification, error) {
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return Notification{}, err
	}
	row := s.DB.QueryRow(ctx, `
    INSERT INTO notifications (user_id, type, title, body, severity, meta_json)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, user_id, type, title, body, severity, meta_json, read_at, created_at
  `, n.UserID, n.Type, n.Title, n.Body, n.Severity, meta)
	return scanNotification(row)
}

func (s *Store) ListForUser(ctx context.Context, userID string, filter ListFilter) ([]Notification, error) {
	query := `
    SELECT n.id, n.user_id, n.type, n.title, n.body, n.severity, n.meta_json,
           COALESCE(n.read_at, r.read_at), n.created_at` + visibleToUser
	args := []any{userID}
	if filter.UnreadOnly {
		query += " AND COALESCE(n.read_at, r.read_at) IS NULL"
	}
	if filter.Since != nil {
		query += fmt.Sprintf(" AND n.created_at >= $%d", len(args)+1)
		args = append(args, *filter.Since)
	}
	query += fmt.Sprintf(" ORDER BY n.created_at DESC, n.id DESC LIMIT $%d", len(args)+1)
	args = append(args, filter.Limit)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1)"+visibleToUser+" AND COALESCE(n.read_at, r.read_at) IS NULL", userID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = COALESCE(read_at, now())
    WHERE user_id = $1 AND id = $2
  `, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	tag, err = s.DB.Exec(ctx, `
    INSERT INTO notification_receipts (notification_id, user_id, read_at)
    SELECT id, $1, now() FROM notifications WHERE id = $2 AND user_id IS NULL
    ON CONFLICT (notification_id, user_id) DO UPDATE
      SET read_at = COALESCE(notification_receipts.read_at, now())
      WHERE notification_receipts.deleted_at IS NULL
  `, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	own, err := tx.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE user_id = $1 AND read_at IS NULL
  `, userID)
	if err != nil {
		return 0, err
	}
	pending, err := tx.Exec(ctx, `
    UPDATE notification_receipts SET read_at = now()
    WHERE user_id = $1 AND read_at IS NULL AND deleted_at IS NULL
  `, userID)
	if err != nil {
		return 0, err
	}
	fresh, err := tx.Exec(ctx, `
    INSERT INTO notification_receipts (notification_id, user_id, read_at)
    SELECT n.id, $1, now()
    FROM notifications n
    WHERE n.user_id IS NULL
      AND NOT EXISTS (SELECT 1 FROM notification_receipts r WHERE r.notification_id = n.id AND r.user_id = $1)
  `, userID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(own.RowsAffected() + pending.RowsAffected() + fresh.RowsAffected()), nil
}

func (s *Store) Delete(ctx context.Context, userID, notificationID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM notifications WHERE user_id = $1 AND id = $2", userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	tag, err = s.DB.Exec(ctx, `
    INSERT INTO notification_receipts (notification_id, user_id, deleted_at)
    SELECT id, $1, now() FROM notifications WHERE id = $2 AND user_id IS NULL
    ON CONFLICT (notification_id, user_id) DO UPDATE
      SET deleted_at = now()
      WHERE notification_receipts.deleted_at IS NULL
  `, userID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	var meta []byte
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Severity, &meta, &n.ReadAt, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Meta); err != nil {
			return Notification{}, err
		}
	}
	n.Read = n.ReadAt != nil
	return n, nil
}
