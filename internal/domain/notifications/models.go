package notifications

import "time"

type Notification struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Severity  string         `json:"severity"`
	Meta      map[string]any `json:"meta"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	CreatedAt time.Time      `json:"ts"`
}

func (n Notification) Broadcast() bool {
	return n.UserID == nil
}

// Input describes a notification to emit. An empty UserID broadcasts to every user.
type Input struct {
	UserID   string
	Type     string
	Title    string
	Body     string
	Severity string
	Meta     map[string]any
}

type ListFilter struct {
	UnreadOnly bool
	Since      *time.Time
	Limit      int
}
