package notificationshandler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"clinic/internal/domain/auth"
	"clinic/internal/domain/notifications"
	"clinic/internal/transport/http/api"
	"clinic/internal/transport/http/middleware"
	"clinic/internal/transport/http/shared"
)

const unreadHeader = "X-Unread-Count"

type Service interface {
	List(ctx context.Context, userID string, filter notifications.ListFilter) ([]notifications.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	Acknowledge(ctx context.Context, userID, notificationID string) error
	AcknowledgeAll(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID, notificationID string) error
}

type Handler struct {
	Service Service
	Perms   middleware.PermissionStore
}

func NewHandler(service Service, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequirePermission(auth.PermNotificationsUse, h.Perms))
		r.Get("/", h.handleList)
		r.Post("/ack-all", h.handleAckAll)
		r.Post("/{notificationID}/ack", h.handleAck)
		r.Delete("/{notificationID}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}

	query := r.URL.Query()
	validator := shared.NewValidator()
	filter := notifications.ListFilter{}
	if raw := strings.TrimSpace(query.Get("unread")); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			validator.Add("unread", "must be true or false")
		}
		filter.UnreadOnly = unread
	}
	since, err := shared.ParseOptionalTime(query.Get("since"))
	if err != nil {
		validator.Add("since", "must be RFC3339 or YYYY-MM-DD")
	}
	filter.Since = since
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			validator.Add("limit", "must be a positive integer")
		}
		filter.Limit = limit
	}
	if validator.Reject(w, requestID) {
		return
	}

	items, err := h.Service.List(r.Context(), user.UserID, filter)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	unread, err := h.Service.CountUnread(r.Context(), user.UserID)
	if err != nil {
		slog.Warn("notification unread count failed", "userId", user.UserID, "err", err)
	} else {
		w.Header().Set(unreadHeader, strconv.Itoa(unread))
	}
	api.Success(w, items, requestID)
}

func (h *Handler) handleAck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	if err := h.Service.Acknowledge(r.Context(), user.UserID, chi.URLParam(r, "notificationID")); err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, map[string]string{"status": "read"}, requestID)
}

func (h *Handler) handleAckAll(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	count, err := h.Service.AcknowledgeAll(r.Context(), user.UserID)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, map[string]int{"acknowledged": count}, requestID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	if err := h.Service.Delete(r.Context(), user.UserID, chi.URLParam(r, "notificationID")); err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, requestID)
}
