package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/api/response"
	"github.com/formbricks/forms/internal/api/validation"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/session"
)

// SessionsService defines the respondent-facing session operations.
type SessionsService interface {
	Open(ctx context.Context, req *models.OpenSessionRequest) (*session.Session, error)
	View(ctx context.Context, id uuid.UUID) (models.SessionView, error)
	SetAnswer(ctx context.Context, id uuid.UUID, req *models.SetAnswerRequest) (models.SessionView, error)
	SetAnswers(ctx context.Context, id uuid.UUID, req *models.SetAnswersRequest) (models.SessionView, error)
	Navigate(ctx context.Context, id uuid.UUID, req *models.NavigateRequest) (models.SessionView, error)
	Save(ctx context.Context, id uuid.UUID) (models.SessionView, error)
	Submit(ctx context.Context, id uuid.UUID) (models.SessionView, error)
}

// SessionsHandler serves the public respondent API.
type SessionsHandler struct {
	service SessionsService
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(service SessionsService) *SessionsHandler {
	return &SessionsHandler{service: service}
}

// Open handles POST /public/sessions.
func (h *SessionsHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req models.OpenSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sess, err := h.service.Open(r.Context(), &req)
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusCreated, sess.View())
}

// Get handles GET /public/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	view, err := h.service.View(r.Context(), id)
	respondView(w, r, view, err)
}

// SetAnswer handles PUT /public/sessions/{id}/answer.
func (h *SessionsHandler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	var req models.SetAnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.service.SetAnswer(r.Context(), id, &req)
	respondView(w, r, view, err)
}

// SetAnswers handles PUT /public/sessions/{id}/answers.
func (h *SessionsHandler) SetAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	var req models.SetAnswersRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	view, err := h.service.SetAnswers(r.Context(), id, &req)
	respondView(w, r, view, err)
}

// Navigate handles POST /public/sessions/{id}/navigate.
func (h *SessionsHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	var req models.NavigateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if (req.Direction == "") == (req.SectionID == "") {
		response.RespondBadRequest(w, "exactly one of direction or section_id is required")

		return
	}

	view, err := h.service.Navigate(r.Context(), id, &req)
	respondView(w, r, view, err)
}

// Save handles POST /public/sessions/{id}/save.
func (h *SessionsHandler) Save(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	view, err := h.service.Save(r.Context(), id)
	respondView(w, r, view, err)
}

// Submit handles POST /public/sessions/{id}/submit. Missing required answers are
// reported as 422 with one entry per field.
func (h *SessionsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "Session")
	if !ok {
		return
	}

	view, err := h.service.Submit(r.Context(), id)
	respondView(w, r, view, err)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validation.DecodeJSON(r, dst); err != nil {
		validation.RespondValidationError(w, err)

		return false
	}

	if err := validation.ValidateStruct(dst); err != nil {
		validation.RespondValidationError(w, err)

		return false
	}

	return true
}

func respondView(w http.ResponseWriter, r *http.Request, view models.SessionView, err error) {
	if err != nil {
		response.RespondServiceError(w, r, err)

		return
	}

	response.RespondJSON(w, http.StatusOK, view)
}
