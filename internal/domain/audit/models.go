package audit

import (
	"encoding/json"
	"time"
)

// Actor is the authenticated caller as reported by the identity collaborator.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Event struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"ts"`
	Action      string          `json:"action"`
	SubjectType string          `json:"subjectType"`
	SubjectID   string          `json:"subjectId"`
	User        Actor           `json:"user"`
	Meta        map[string]any  `json:"meta"`
	Success     bool            `json:"success"`
	RequestID   string          `json:"requestId,omitempty"`
	IP          string          `json:"ip,omitempty"`
	Before      json.RawMessage `json:"before,omitempty"`
	After       json.RawMessage `json:"after,omitempty"`
}

// Entry is what callers hand to Record. Before and After are marshalled as JSON snapshots.
type Entry struct {
	Action      string
	SubjectType string
	SubjectID   string
	Actor       Actor
	Meta        map[string]any
	Before      any
	After       any
	Success     bool
}

type Filter struct {
	Action       string
	ActionPrefix string
	SubjectType  string
	SubjectID    string
	UserID       string
	From         *time.Time
	To           *time.Time
	Success      *bool
}
