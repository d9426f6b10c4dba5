package audithandler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/auth"
	"clinic/internal/transport/http/api"
	"clinic/internal/transport/http/middleware"
	"clinic/internal/transport/http/shared"
)

const (
	exportPageSize = 500
	exportMaxRows  = 10000
)

type Service interface {
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.Filter) (int, error)
	Actions(ctx context.Context) ([]string, error)
	SubjectTypes(ctx context.Context) ([]string, error)
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/actions", h.handleActions)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/subject-types", h.handleSubjectTypes)
	})
}

// parseFilter reads action, actionPrefix, subjectType, subjectId, userId, from, to and success.
func parseFilter(r *http.Request, validator *shared.Validator) audit.Filter {
	query := r.URL.Query()
	filter := audit.Filter{
		Action:       strings.TrimSpace(query.Get("action")),
		ActionPrefix: strings.TrimSpace(query.Get("actionPrefix")),
		SubjectType:  strings.TrimSpace(query.Get("subjectType")),
		SubjectID:    strings.TrimSpace(query.Get("subjectId")),
		UserID:       strings.TrimSpace(query.Get("userId")),
	}
	if from, err := shared.ParseOptionalTime(query.Get("from")); err != nil {
		validator.Add("from", "must be RFC3339 or YYYY-MM-DD")
	} else {
		filter.From = from
	}
	if to, err := shared.ParseOptionalTime(query.Get("to")); err != nil {
		validator.Add("to", "must be RFC3339 or YYYY-MM-DD")
	} else {
		filter.To = to
	}
	if raw := strings.TrimSpace(query.Get("success")); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			validator.Add("success", "must be true or false")
		} else {
			filter.Success = &success
		}
	}
	return filter
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	validator := shared.NewValidator()
	filter := parseFilter(r, validator)
	if validator.Reject(w, requestID) {
		return
	}

	page := shared.ParsePagination(r, 100, 500)
	events, err := h.Service.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	total, err := h.Service.Count(r.Context(), filter)
	if err != nil {
		slog.Warn("audit count failed", "err", err)
	} else {
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
	}
	api.Success(w, events, requestID)
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	validator := shared.NewValidator()
	filter := parseFilter(r, validator)
	if validator.Reject(w, requestID) {
		return
	}

	var events []audit.Event
	for offset := 0; offset < exportMaxRows; offset += exportPageSize {
		batch, err := h.Service.List(r.Context(), filter, exportPageSize, offset)
		if err != nil {
			shared.FailError(w, err, requestID)
			return
		}
		events = append(events, batch...)
		if len(batch) < exportPageSize {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "ts", "action", "subject_type", "subject_id", "user_id", "user_name", "success", "request_id", "ip", "meta"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		meta, err := json.Marshal(evt.Meta)
		if err != nil {
			meta = []byte("{}")
		}
		row := []string{
			evt.ID,
			evt.Timestamp.UTC().Format(time.RFC3339),
			evt.Action,
			evt.SubjectType,
			evt.SubjectID,
			evt.User.ID,
			evt.User.Name,
			strconv.FormatBool(evt.Success),
			evt.RequestID,
			evt.IP,
			string(meta),
		}
		if err := writer.Write(row); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}

func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.Service.Actions(r.Context())
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, actions, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSubjectTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.SubjectTypes(r.Context())
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, types, middleware.GetRequestID(r.Context()))
}
