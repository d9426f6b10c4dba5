package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/notifications"
	"clinic/internal/domain/payroll"
	"clinic/internal/transport/http/api"
)

// FailError maps domain error roots onto the response envelope. Unknown errors are logged and hidden.
func FailError(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, payroll.ErrValidation),
		errors.Is(err, audit.ErrInvalidFilter),
		errors.Is(err, notifications.ErrInvalidSeverity):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, payroll.ErrNotFound), errors.Is(err, notifications.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, payroll.ErrDependency):
		api.Fail(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error(), requestID)
	default:
		slog.Error("request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "internal", "internal server error", requestID)
	}
}
