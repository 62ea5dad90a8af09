package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/api/response"
	"github.com/formbricks/forms/internal/api/validation"
	"github.com/formbricks/forms/internal/models"
)

// ResponsesService defines read access to stored responses.
type ResponsesService interface {
	GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error)
	ListResponses(ctx context.Context, templateID uuid.UUID, filters *models.ListResponsesFilters) (*models.ListResponsesResponse, error)
}

// ResponsesHandler handles HTTP requests for stored responses.
type ResponsesHandler struct {
	service ResponsesService
}

// NewResponsesHandler creates a new responses handler.
func NewResponsesHandler(service ResponsesService) *ResponsesHandler {
	return &ResponsesHandler{service: service}
}

// Get handles GET /v1/responses/{id}.
func (h *ResponsesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Response")
	if !ok {
		return
	}

	resp, err := h.service.GetResponse(r.Context(), id)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, resp)
}

// ListByTemplate handles GET /v1/templates/{id}/responses?status=&limit=&offset=.
func (h *ResponsesHandler) ListByTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, ok := pathID(w, r, "Template")
	if !ok {
		return
	}

	filters := &models.ListResponsesFilters{}
	if err := validation.ValidateAndDecodeQueryParams(r, filters); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	result, err := h.service.ListResponses(r.Context(), templateID, filters)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, result)
}
