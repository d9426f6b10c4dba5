package notifications

import "errors"

var (
	ErrNotFound        = errors.New("notification not found")
	ErrInvalidSeverity = errors.New("notification severity must be info, warning, error or success")
	ErrTitleRequired   = errors.New("notification title is required")
)
