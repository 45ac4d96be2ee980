package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mscno/safereport/pkg/assistant"
	"github.com/mscno/safereport/pkg/evidence"
	"github.com/mscno/safereport/server/middleware"
	"github.com/mscno/safereport/server/model"
)

const (
	DefaultMaxFileBytes  = 10 << 20
	DefaultMaxTotalBytes = 50 << 20
	maxJSONBodyBytes     = 1 << 20
	evidenceField        = "evidence"
)

// Limits bounds submission payloads.
type Limits struct {
	MaxFileBytes  int64
	MaxTotalBytes int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = DefaultMaxFileBytes
	}
	if l.MaxTotalBytes <= 0 {
		l.MaxTotalBytes = DefaultMaxTotalBytes
	}
	return l
}

// Handler serves the REST API.
type Handler struct {
	Reports       *ReportService
	Organizations *OrganizationService
	Assistant     *assistant.Service
	validate      *validator.Validate
	limits        Limits
	logger        *slog.Logger
}

func NewHandler(reports *ReportService, organizations *OrganizationService, chat *assistant.Service, limits Limits, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Reports:       reports,
		Organizations: organizations,
		Assistant:     chat,
		validate:      newValidator(),
		limits:        limits.withDefaults(),
		logger:        logger,
	}
}

// SubmitResponse is returned for an accepted report.
type SubmitResponse struct {
	ReportID     string `json:"reportId"`
	IncidentType string `json:"incidentType"`
	UrgencyLevel string `json:"urgencyLevel"`
	Status       string `json:"status"`
}

type submitRequest struct {
	SubmitInput
	Evidence []struct {
		Name string `json:"name"`
		Data []byte `json:"data"`
	} `json:"evidence"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error      string      `json:"error"`
	Violations []Violation `json:"violations,omitempty"`
}

// SubmitReport handles POST /api/v1/reports
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	in, err := h.readSubmission(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.Reports.Submit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{
		ReportID:     report.ID,
		IncidentType: report.IncidentType.String(),
		UrgencyLevel: string(report.UrgencyLevel),
		Status:       report.Status.String(),
	})
}

// ListReports handles GET /api/v1/reports
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	reports, err := h.Reports.ListForOrganization(r.Context(), actor, queryValue(r, "status"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// GetReport handles GET /api/v1/reports/{id}
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	report, err := h.Reports.Get(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// UpdateReportStatus handles PATCH /api/v1/reports/{id}/status
func (h *Handler) UpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	report, err := h.Reports.Transition(r.Context(), r.PathValue("id"), req.Status, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if actor.Role == model.RoleOrganization {
		report = report.Redacted()
	}
	writeJSON(w, http.StatusOK, report)
}

// MatchReport handles GET /api/v1/reports/{id}/organizations
func (h *Handler) MatchReport(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Reports.MatchReport(r.Context(), r.PathValue("id"), h.Organizations)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// FindOrganizations handles GET /api/v1/organizations?incidentType=X
func (h *Handler) FindOrganizations(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Organizations.FindByIncidentType(r.Context(), queryValue(r, "incidentType"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// GetOwnProfile handles GET /api/v1/organizations/me
func (h *Handler) GetOwnProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	profile, err := h.Organizations.GetProfile(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// PutOwnProfile handles PUT /api/v1/organizations/me
func (h *Handler) PutOwnProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var in ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	profile, err := h.Organizations.RegisterProfile(r.Context(), actor, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListAllOrganizations handles GET /api/v1/admin/organizations
func (h *Handler) ListAllOrganizations(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Organizations.ListAll(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profiles)
}

// ReviewOrganization handles PATCH /api/v1/admin/organizations/{id}
func (h *Handler) ReviewOrganization(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var in ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	profile, err := h.Organizations.ReviewProfile(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Chat handles POST /api/v1/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req assistant.Request
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateStruct(h.validate, req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Assistant.Chat(r.Context(), req))
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readSubmission(w http.ResponseWriter, r *http.Request) (SubmitInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return h.readMultipartSubmission(w, r)
	}

	var req submitRequest
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxTotalBytes*4/3+maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return SubmitInput{}, decodeError(err)
	}
	in := req.SubmitInput
	var total int64
	for i, e := range req.Evidence {
		size := int64(len(e.Data))
		if size > h.limits.MaxFileBytes {
			return SubmitInput{}, fileTooLarge(i, h.limits.MaxFileBytes)
		}
		total += size
		in.Files = append(in.Files, evidence.File{Name: e.Name, Data: e.Data})
	}
	if total > h.limits.MaxTotalBytes {
		return SubmitInput{}, newValidationError(evidenceField, fmt.Sprintf("attachments exceed %d bytes in total", h.limits.MaxTotalBytes))
	}
	return in, nil
}

func (h *Handler) readMultipartSubmission(w http.ResponseWriter, r *http.Request) (SubmitInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxTotalBytes+maxJSONBodyBytes)
	if err := r.ParseMultipartForm(maxJSONBodyBytes); err != nil {
		return SubmitInput{}, decodeError(err)
	}
	defer r.MultipartForm.RemoveAll()

	in := SubmitInput{
		IncidentTitle: r.FormValue("incidentTitle"),
		Description:   r.FormValue("description"),
		OccurredAt:    r.FormValue("occurredAt"),
		Location:      r.FormValue("location"),
		ContactPhone:  r.FormValue("contactPhone"),
		UrgencyLevel:  r.FormValue("urgencyLevel"),
	}
	if v := r.FormValue("consentToShare"); v != "" {
		consent, err := strconv.ParseBool(v)
		if err != nil {
			return SubmitInput{}, newValidationError("consentToShare", "must be true or false")
		}
		in.ConsentToShare = consent
	}

	for i, fh := range r.MultipartForm.File[evidenceField] {
		if fh.Size > h.limits.MaxFileBytes {
			return SubmitInput{}, fileTooLarge(i, h.limits.MaxFileBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return SubmitInput{}, fmt.Errorf("open attachment %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return SubmitInput{}, fmt.Errorf("read attachment %s: %w", fh.Filename, err)
		}
		in.Files = append(in.Files, evidence.File{Name: fh.Filename, Data: data})
	}
	return in, nil
}

func fileTooLarge(i int, limit int64) error {
	return newValidationError(fmt.Sprintf("%s[%d]", evidenceField, i), fmt.Sprintf("attachment exceeds %d bytes", limit))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return decodeError(err)
	}
	return nil
}

var errRequestTooLarge = errors.New("request body too large")

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errRequestTooLarge
	}
	return newValidationError("body", "invalid request body: "+err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps service errors to status codes. Persistence details stay
// in the log.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ValidationError
		nf *NotFoundError
		fe *ForbiddenError
		pe *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Violations: ve.Violations})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: nf.Error()})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: fe.Error()})
	case errors.Is(err, errRequestTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.WarnContext(r.Context(), "request abandoned", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request cancelled"})
	case errors.As(err, &pe):
		h.logger.ErrorContext(r.Context(), "persistence failure", "path", r.URL.Path, "op", pe.Op, "error", pe.Err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	default:
		h.logger.ErrorContext(r.Context(), "unhandled error", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// Router is satisfied by *michi.Router and *http.ServeMux.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterRoutes mounts the API on mux. limit wraps the anonymous write
// endpoints.
func (h *Handler) RegisterRoutes(mux Router, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	org := middleware.RequireRole(model.RoleOrganization)
	reviewer := middleware.RequireRole(model.RoleOrganization, model.RoleAdmin)
	admin := middleware.RequireRole(model.RoleAdmin)

	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))

	mux.Handle("POST /api/v1/reports", limit(http.HandlerFunc(h.SubmitReport)))
	mux.Handle("GET /api/v1/reports", org(http.HandlerFunc(h.ListReports)))
	mux.Handle("GET /api/v1/reports/{id}", reviewer(http.HandlerFunc(h.GetReport)))
	mux.Handle("PATCH /api/v1/reports/{id}/status", reviewer(http.HandlerFunc(h.UpdateReportStatus)))
	mux.Handle("GET /api/v1/reports/{id}/organizations", http.HandlerFunc(h.MatchReport))

	mux.Handle("GET /api/v1/organizations", http.HandlerFunc(h.FindOrganizations))
	mux.Handle("GET /api/v1/organizations/me", org(http.HandlerFunc(h.GetOwnProfile)))
	mux.Handle("PUT /api/v1/organizations/me", org(http.HandlerFunc(h.PutOwnProfile)))

	mux.Handle("GET /api/v1/admin/organizations", admin(http.HandlerFunc(h.ListAllOrganizations)))
	mux.Handle("PATCH /api/v1/admin/organizations/{id}", admin(http.HandlerFunc(h.ReviewOrganization)))

	mux.Handle("POST /api/v1/chat", limit(http.HandlerFunc(h.Chat)))
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
