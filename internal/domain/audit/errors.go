package audit

import "errors"

var (
	ErrInvalidEntry  = errors.New("audit entry requires action and subject type")
	ErrInvalidFilter = errors.New("audit filter time range is inverted")
)
