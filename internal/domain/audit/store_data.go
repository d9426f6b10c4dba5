package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const eventColumns = "id, created_at, action, subject_type, subject_id, user_id, user_name, success, meta_json, before_json, after_json, request_id, ip"

func (s *Store) Insert(ctx context.Context, evt Event) (Event, error) {
	meta, err := json.Marshal(evt.Meta)
	if err != nil {
		return Event{}, err
	}
	row := s.DB.QueryRow(ctx, `
    INSERT INTO audit_events (action, subject_type, subject_id, user_id, user_name, success, meta_json, before_json, after_json, request_id, ip)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING `+eventColumns,
		evt.Action, evt.SubjectType, evt.SubjectID, evt.User.ID, evt.User.Name, evt.Success, meta,
		nullJSON(evt.Before), nullJSON(evt.After), evt.RequestID, evt.IP)
	return scanEvent(row)
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildBaseQuery("SELECT "+eventColumns, filter)
	limitPos := len(args) + 1
	offsetPos := len(args) + 2
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", limitPos, offsetPos)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, filter Filter) (int, error) {
	query, args := buildBaseQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) DistinctActions(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "SELECT DISTINCT action FROM audit_events ORDER BY action")
}

func (s *Store) DistinctSubjectTypes(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, "SELECT DISTINCT subject_type FROM audit_events ORDER BY subject_type")
}

func (s *Store) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

func buildBaseQuery(prefix string, filter Filter) (string, []any) {
	query := prefix + " FROM audit_events WHERE 1=1"
	args := []any{}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.ActionPrefix != "" {
		query += fmt.Sprintf(" AND action LIKE $%d", len(args)+1)
		args = append(args, filter.ActionPrefix+"%")
	}
	if filter.SubjectType != "" {
		query += fmt.Sprintf(" AND subject_type = $%d", len(args)+1)
		args = append(args, filter.SubjectType)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", len(args)+1)
		args = append(args, filter.UserID)
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, *filter.To)
	}
	if filter.Success != nil {
		query += fmt.Sprintf(" AND success = $%d", len(args)+1)
		args = append(args, *filter.Success)
	}
	return query, args
}

func scanEvent(row pgx.Row) (Event, error) {
	var evt Event
	var meta []byte
	if err := row.Scan(&evt.ID, &evt.Timestamp, &evt.Action, &evt.SubjectType, &evt.SubjectID, &evt.User.ID, &evt.User.Name,
		&evt.Success, &meta, &evt.Before, &evt.After, &evt.RequestID, &evt.IP); err != nil {
		return Event{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &evt.Meta); err != nil {
			return Event{}, err
		}
	}
	return evt, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
