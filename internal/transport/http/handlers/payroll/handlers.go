package payrollhandler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"clinic/internal/domain/audit"
	"clinic/internal/domain/auth"
	"clinic/internal/domain/export"
	"clinic/internal/domain/payroll"
	"clinic/internal/transport/http/api"
	"clinic/internal/transport/http/middleware"
	"clinic/internal/transport/http/shared"
)

type PayrollService interface {
	CreatePeriod(ctx context.Context, actor audit.Actor, in payroll.PeriodInput) (payroll.PayPeriod, error)
	GetPeriod(ctx context.Context, id string) (payroll.PayPeriod, error)
	ListPeriods(ctx context.Context, limit, offset int) ([]payroll.PayPeriod, error)
	CreateOrGetRun(ctx context.Context, actor audit.Actor, periodID string) (payroll.Run, bool, error)
	GetRun(ctx context.Context, id string) (payroll.RunDetail, error)
	ListRuns(ctx context.Context, filter payroll.RunFilter) ([]payroll.Run, error)
	SeedRecords(ctx context.Context, actor audit.Actor, runID string, inputs []payroll.RecordInput) ([]payroll.Record, error)
	PostRun(ctx context.Context, actor audit.Actor, runID string) (payroll.Run, error)
	VoidRun(ctx context.Context, actor audit.Actor, runID, reason string) (payroll.Run, error)
}

type Exporter interface {
	CSV(ctx context.Context, actor audit.Actor, runID string) (export.Document, error)
	ACH(ctx context.Context, actor audit.Actor, runID, mode string) (export.ACHFile, error)
	PDF(ctx context.Context, actor audit.Actor, runID, employeeID string) (export.Document, error)
}

type Handler struct {
	Service     PayrollService
	Exports     Exporter
	Perms       middleware.PermissionStore
	Idempotency middleware.IdempotencyStoreAPI
	// SeedEnabled mounts the record seeding endpoint. It is never set in production.
	SeedEnabled bool
}

func NewHandler(service PayrollService, exports Exporter, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Exports: exports, Perms: perms}
}

type periodPayload struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Frequency string `json:"frequency" validate:"required,oneof=weekly biweekly monthly"`
	PayDate   string `json:"payDate"`
}

type recordPayload struct {
	EmployeeID    string              `json:"employeeId" validate:"required,max=64"`
	HourlyRate    decimal.Decimal     `json:"hourlyRate"`
	RegularHours  decimal.Decimal     `json:"regularHours"`
	OvertimeHours decimal.Decimal     `json:"overtimeHours"`
	BonusPay      decimal.Decimal     `json:"bonusPay"`
	Deductions    []payroll.Deduction `json:"deductions"`
}

type seedPayload struct {
	Records []recordPayload `json:"records" validate:"required,min=1,max=1000,dive"`
}

type voidPayload struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type achResponse struct {
	export.ACHFile
	Partial bool   `json:"partial"`
	Content string `json:"content"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods", h.handleListPeriods)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/periods", h.handleCreatePeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/periods/{periodID}", h.handleGetPeriod)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/periods/{periodID}/runs", h.handleCreateOrGetRun)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs", h.handleListRuns)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/runs/{runID}", h.handleGetRun)
		if h.SeedEnabled {
			r.With(middleware.RequirePermission(auth.PermPayrollSeed, h.Perms), middleware.Idempotent(h.Idempotency)).
				Post("/runs/{runID}/records", h.handleSeedRecords)
		}
		r.With(middleware.RequirePermission(auth.PermPayrollPost, h.Perms)).Post("/runs/{runID}/post", h.handlePostRun)
		r.With(middleware.RequirePermission(auth.PermPayrollVoid, h.Perms)).Post("/runs/{runID}/void", h.handleVoidRun)
		r.With(middleware.RequirePermission(auth.PermPayrollExport, h.Perms)).Get("/runs/{runID}/export/csv", h.handleExportCSV)
		r.With(middleware.RequirePermission(auth.PermPayrollExport, h.Perms)).Get("/runs/{runID}/export/ach", h.handleExportACH)
		r.With(middleware.RequirePermission(auth.PermPayrollExport, h.Perms)).Get("/runs/{runID}/export/pdf", h.handleExportPDF)
	})
}

func actorFrom(r *http.Request) (audit.Actor, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		return audit.Actor{}, false
	}
	return user.Actor(), true
}

func (h *Handler) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, payroll.DefaultListLimit, payroll.MaxListLimit)
	periods, err := h.Service.ListPeriods(r.Context(), page.Limit, page.Offset)
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, periods, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreatePeriod(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload periodPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), requestID)
		return
	}
	payload.Frequency = strings.ToLower(strings.TrimSpace(payload.Frequency))

	validator := shared.NewValidator()
	validator.Struct(payload)
	in := payroll.PeriodInput{Frequency: payload.Frequency}
	if payload.StartDate != "" {
		in.StartDate, _ = validator.Date("startDate", payload.StartDate)
	}
	if payload.EndDate != "" {
		in.EndDate, _ = validator.Date("endDate", payload.EndDate)
	}
	if payload.PayDate != "" {
		in.PayDate, _ = validator.Date("payDate", payload.PayDate)
	}
	validator.DateOrder("startDate", in.StartDate, "endDate", in.EndDate)
	if validator.Reject(w, requestID) {
		return
	}

	period, err := h.Service.CreatePeriod(r.Context(), actor, in)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Created(w, period, requestID)
}

func (h *Handler) handleGetPeriod(w http.ResponseWriter, r *http.Request) {
	period, err := h.Service.GetPeriod(r.Context(), chi.URLParam(r, "periodID"))
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, period, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateOrGetRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	run, created, err := h.Service.CreateOrGetRun(r.Context(), actor, chi.URLParam(r, "periodID"))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	if created {
		api.Created(w, run, requestID)
		return
	}
	api.Success(w, run, requestID)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, payroll.DefaultListLimit, payroll.MaxListLimit)
	query := r.URL.Query()
	runs, err := h.Service.ListRuns(r.Context(), payroll.RunFilter{
		PeriodID: strings.TrimSpace(query.Get("periodId")),
		Status:   strings.ToLower(strings.TrimSpace(query.Get("status"))),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		shared.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, detail, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSeedRecords(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload seedPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), requestID)
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, requestID) {
		return
	}

	inputs := make([]payroll.RecordInput, 0, len(payload.Records))
	for _, rec := range payload.Records {
		inputs = append(inputs, payroll.RecordInput{
			EmployeeID:    strings.TrimSpace(rec.EmployeeID),
			HourlyRate:    rec.HourlyRate,
			RegularHours:  rec.RegularHours,
			OvertimeHours: rec.OvertimeHours,
			BonusPay:      rec.BonusPay,
			Deductions:    rec.Deductions,
		})
	}
	records, err := h.Service.SeedRecords(r.Context(), actor, chi.URLParam(r, "runID"), inputs)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Created(w, records, requestID)
}

func (h *Handler) handlePostRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	run, err := h.Service.PostRun(r.Context(), actor, chi.URLParam(r, "runID"))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, run, requestID)
}

func (h *Handler) handleVoidRun(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	var payload voidPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", err.Error(), requestID)
		return
	}
	payload.Reason = strings.TrimSpace(payload.Reason)
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, requestID) {
		return
	}

	run, err := h.Service.VoidRun(r.Context(), actor, chi.URLParam(r, "runID"), payload.Reason)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Success(w, run, requestID)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	doc, err := h.Exports.CSV(r.Context(), actor, chi.URLParam(r, "runID"))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Attachment(w, doc.ContentType, doc.Filename, doc.Content)
}

// handleExportACH answers with the file metadata and content as JSON, or with the raw file when download=1.
// Skipped employees are listed in both forms.
func (h *Handler) handleExportACH(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	query := r.URL.Query()
	file, err := h.Exports.ACH(r.Context(), actor, chi.URLParam(r, "runID"), strings.TrimSpace(query.Get("mode")))
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}

	if download, _ := strconv.ParseBool(query.Get("download")); download {
		w.Header().Set("X-ACH-Mode", file.Mode)
		w.Header().Set("X-ACH-Entries", strconv.Itoa(file.EntryCount))
		if file.Partial() {
			w.Header().Set("X-ACH-Skipped", strings.Join(file.Skipped, ","))
		}
		api.Attachment(w, "text/plain; charset=utf-8", file.Filename, file.Content)
		return
	}
	api.Success(w, achResponse{ACHFile: file, Partial: file.Partial(), Content: string(file.Content)}, requestID)
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	actor, ok := actorFrom(r)
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
		return
	}
	employeeID := strings.TrimSpace(r.URL.Query().Get("employeeId"))
	doc, err := h.Exports.PDF(r.Context(), actor, chi.URLParam(r, "runID"), employeeID)
	if err != nil {
		shared.FailError(w, err, requestID)
		return
	}
	api.Attachment(w, doc.ContentType, doc.Filename, doc.Content)
}
