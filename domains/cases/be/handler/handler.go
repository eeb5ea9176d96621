// Package handler exposes the case lifecycle over HTTP. Errors are rendered
// as RFC 7807 problem-details documents.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
	platformlogging "github.com/mediamatex/lexarbitra-vue/platform/go/logging"
)

const (
	problemTypeValidation = "https://lexarbitra.de/problems/validation-error"
	problemTypeNotFound   = "https://lexarbitra.de/problems/not-found"
	problemTypeProvision  = "https://lexarbitra.de/problems/provisioning-failed"
	problemTypeInternal   = "https://lexarbitra.de/problems/internal-error"
)

// Handler wires the case service to HTTP routes.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("case service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the case endpoints on a router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/cases", h.listCases)
	r.Post("/cases", h.createCase)
	r.Post("/cases/validate-sync", h.validateSync)
	r.Route("/cases/{caseId}", func(r chi.Router) {
		r.Get("/", h.getCase)
		r.Patch("/", h.updateCase)
		r.Delete("/", h.deleteCase)
		r.Post("/test-database", h.testDatabase)
		r.Post("/refresh-database", h.refreshDatabase)
	})
	r.Get("/debug/database-info", h.databaseInfo)
	return r
}

type caseReferenceBody struct {
	ID             string     `json:"id"`
	CaseNumber     string     `json:"case_number"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	InitiatedAt    string     `json:"initiated_at"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	TenantCaseID   *uuid.UUID `json:"tenant_case_id,omitempty"`
	DatabaseName   string     `json:"database_name"`
	BackendKind    string     `json:"backend_kind"`
	ConnectionName string     `json:"connection_name"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toCaseBody(ref service.CaseReference) caseReferenceBody {
	return caseReferenceBody{
		ID:             ref.ID.String(),
		CaseNumber:     ref.CaseNumber,
		Title:          ref.Title,
		Status:         ref.Status,
		InitiatedAt:    ref.InitiatedAt.Format("2006-01-02"),
		CreatedBy:      ref.CreatedBy,
		TenantCaseID:   ref.TenantCaseID,
		DatabaseName:   ref.DatabaseName,
		BackendKind:    string(ref.BackendKind),
		ConnectionName: ref.ConnectionName,
		IsActive:       ref.IsActive,
		CreatedAt:      ref.CreatedAt,
		UpdatedAt:      ref.UpdatedAt,
	}
}

func (h *Handler) createCase(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), problemTypeValidation)
		return
	}

	result, err := h.svc.CreateCase(r.Context(), in)
	if err != nil {
		h.renderError(w, r, err, "createCase")
		return
	}

	w.Header().Set("Location", "/api/v1/cases/"+result.Reference.ID.String())
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"case":             toCaseBody(result.Reference),
		"database_pending": result.DatabasePending,
	})
}

func (h *Handler) listCases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	refs, total, err := h.svc.ListCases(r.Context(), limit, offset)
	if err != nil {
		h.renderError(w, r, err, "listCases")
		return
	}

	items := make([]caseReferenceBody, 0, len(refs))
	for _, ref := range refs {
		items = append(items, toCaseBody(ref))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) getCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetCaseForDisplay(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err, "getCase")
		return
	}

	body := map[string]any{
		"case":         toCaseBody(view.Reference),
		"availability": string(view.Availability),
	}
	if view.Tenant != nil {
		body["tenant_case"] = map[string]any{
			"id":           view.Tenant.ID,
			"case_number":  view.Tenant.CaseNumber,
			"title":        view.Tenant.Title,
			"status":       view.Tenant.Status,
			"initiated_at": view.Tenant.InitiatedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) updateCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	var in service.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), problemTypeValidation)
		return
	}

	result, err := h.svc.UpdateCase(r.Context(), id, in)
	if err != nil {
		h.renderError(w, r, err, "updateCase")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"case":            toCaseBody(result.Reference),
		"tenant_mirrored": result.TenantMirrored,
	})
}

func (h *Handler) deleteCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	report, err := h.svc.DeleteCase(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err, "deleteCase")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"case_id":          report.CaseID.String(),
		"database_name":    report.DatabaseName,
		"database_deleted": report.DatabaseDeleted,
	})
}

func (h *Handler) testDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	report, err := h.svc.TestCaseDatabase(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err, "testCaseDatabase")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"case_id":         report.CaseID.String(),
		"connection_name": report.ConnectionName,
		"database_name":   report.DatabaseName,
		"backend_kind":    string(report.BackendKind),
		"reachable":       report.Reachable,
		"tables":          report.Tables,
		"tenant_cases":    report.TenantCases,
		"error":           report.Error,
	})
}

func (h *Handler) refreshDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.caseID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.RefreshCredentials(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err, "refreshDatabase")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"case":             toCaseBody(result.Reference),
		"database_pending": result.DatabasePending,
	})
}

func (h *Handler) validateSync(w http.ResponseWriter, r *http.Request) {
	fix := r.URL.Query().Get("fix") == "true"

	issues, err := h.svc.ValidateSync(r.Context(), fix)
	if err != nil {
		h.renderError(w, r, err, "validateSync")
		return
	}

	items := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		items = append(items, map[string]any{
			"case_id":         issue.CaseID.String(),
			"connection_name": issue.ConnectionName,
			"problem":         issue.Problem,
			"detail":          issue.Detail,
			"fixed":           issue.Fixed,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"issues": items, "fix": fix})
}

func (h *Handler) databaseInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.DatabaseInfo(r.Context())
	if err != nil {
		h.renderError(w, r, err, "databaseInfo")
		return
	}

	backend := "remote (KAS)"
	if info.Backend == casedb.BackendLocal {
		backend = "local (SQLite)"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"backend":      backend,
		"backend_kind": string(info.Backend),
		"reachable":    info.Reachable,
		"total_cases":  info.TotalCases,
		"linked_cases": info.LinkedCases,
	})
}

func (h *Handler) caseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "caseId"))
	if err != nil {
		h.writeProblem(w, http.StatusBadRequest, "Invalid case id", "case id must be a UUID", problemTypeValidation)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, title, detail, problemType := classifyError(err)

	logger := platformlogging.FromRequest(r, h.logger)
	fields := []zap.Field{zap.String("operation", op), zap.Int("status", status), zap.Error(err)}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("case operation failed", fields...)
	case status == http.StatusNotFound:
		logger.Info("case not found", fields...)
	default:
		logger.Warn("case request rejected", fields...)
	}

	h.writeProblem(w, status, title, detail, problemType)
}

func classifyError(err error) (status int, title, detail, problemType string) {
	var provErr *service.ProvisioningError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, "Validation failed", err.Error(), problemTypeValidation
	case errors.Is(err, service.ErrCaseNotFound):
		return http.StatusNotFound, "Case not found", "no case exists for the given id", problemTypeNotFound
	case errors.As(err, &provErr):
		return http.StatusBadGateway, "Case database provisioning failed", provErr.Error(), problemTypeProvision
	default:
		return http.StatusInternalServerError, "Internal server error", "an unexpected error occurred", problemTypeInternal
	}
}

type problemDetails struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) writeProblem(w http.ResponseWriter, status int, title, detail, problemType string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
