package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/api/response"
	"github.com/formbricks/forms/internal/api/validation"
	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/service"
)

// TemplatesService defines the template operations exposed over HTTP.
type TemplatesService interface {
	CreateTemplate(ctx context.Context, req *models.CreateTemplateRequest) (*service.TemplateResult, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error)
	ListTemplates(ctx context.Context, filters *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error)
	UpdateTemplate(ctx context.Context, id uuid.UUID, req *models.UpdateTemplateRequest) (*service.TemplateResult, error)
	LintTemplate(t *models.Template) []engine.Diagnostic
}

// TemplatesHandler handles HTTP requests for templates.
type TemplatesHandler struct {
	service TemplatesService
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(service TemplatesService) *TemplatesHandler {
	return &TemplatesHandler{service: service}
}

// Create handles POST /v1/templates.
// Templates whose logic does not lint cleanly are rejected with 422.
func (h *TemplatesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.CreateTemplate(r.Context(), &req)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, result)
}

// Get handles GET /v1/templates/{id}.
func (h *TemplatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Template")
	if !ok {
		return
	}

	t, err := h.service.GetTemplate(r.Context(), id)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, t)
}

// List handles GET /v1/templates.
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := &models.ListTemplatesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.ListTemplates(r.Context(), filters)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// Update handles PATCH /v1/templates/{id}. The body carries the version the
// caller last read; a stale version is answered with 409.
func (h *TemplatesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Template")
	if !ok {
		return
	}

	var req models.UpdateTemplateRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.UpdateTemplate(r.Context(), id, &req)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}

// LintResponse lists every diagnostic found in a template.
type LintResponse struct {
	Valid       bool                `json:"valid"`
	Diagnostics []engine.Diagnostic `json:"diagnostics"`
}

// Lint handles POST /v1/templates/lint. Nothing is stored.
func (h *TemplatesHandler) Lint(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTemplateRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	diags := h.service.LintTemplate(&models.Template{
		Name:       req.Name,
		Sections:   req.Sections,
		Navigation: req.Navigation,
	})
	if diags == nil {
		diags = []engine.Diagnostic{}
	}

	response.RespondJSON(w, http.StatusOK, LintResponse{Valid: !engine.HasErrors(diags), Diagnostics: diags})
}
