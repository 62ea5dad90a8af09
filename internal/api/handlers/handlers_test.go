package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/forms/internal/api/response"
	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/service"
	"github.com/formbricks/forms/internal/session"
)

type MockTemplatesService struct {
	mock.Mock
}

func (m *MockTemplatesService) CreateTemplate(ctx context.Context, req *models.CreateTemplateRequest) (*service.TemplateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*service.TemplateResult), args.Error(1)
}

func (m *MockTemplatesService) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Template), args.Error(1)
}

func (m *MockTemplatesService) ListTemplates(ctx context.Context, filters *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ListTemplatesResponse), args.Error(1)
}

func (m *MockTemplatesService) UpdateTemplate(ctx context.Context, id uuid.UUID, req *models.UpdateTemplateRequest) (*service.TemplateResult, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*service.TemplateResult), args.Error(1)
}

func (m *MockTemplatesService) LintTemplate(t *models.Template) []engine.Diagnostic {
	return engine.Lint(t)
}

type MockSessionsService struct {
	mock.Mock
}

func (m *MockSessionsService) Open(ctx context.Context, req *models.OpenSessionRequest) (*session.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionsService) View(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(models.SessionView), args.Error(1)
}

func (m *MockSessionsService) SetAnswer(ctx context.Context, id uuid.UUID, req *models.SetAnswerRequest) (models.SessionView, error) {
	args := m.Called(ctx, id, req)

	return args.Get(0).(models.SessionView), args.Error(1)
}

func (m *MockSessionsService) SetAnswers(ctx context.Context, id uuid.UUID, req *models.SetAnswersRequest) (models.SessionView, error) {
	args := m.Called(ctx, id, req)

	return args.Get(0).(models.SessionView), args.Error(1)
}

func (m *MockSessionsService) Navigate(ctx context.Context, id uuid.UUID, req *models.NavigateRequest) (models.SessionView, error) {
	args := m.Called(ctx, id, req)

	return args.Get(0).(models.SessionView), args.Error(1)
}

func (m *MockSessionsService) Save(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(models.SessionView), args.Error(1)
}

func (m *MockSessionsService) Submit(ctx context.Context, id uuid.UUID) (models.SessionView, error) {
	args := m.Called(ctx, id)

	return args.Get(0).(models.SessionView), args.Error(1)
}

type MockResponsesService struct {
	mock.Mock
}

func (m *MockResponsesService) GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Response), args.Error(1)
}

func (m *MockResponsesService) ListResponses(
	ctx context.Context, templateID uuid.UUID, filters *models.ListResponsesFilters,
) (*models.ListResponsesResponse, error) {
	args := m.Called(ctx, templateID, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ListResponsesResponse), args.Error(1)
}

func sampleTemplate() *models.Template {
	return &models.Template{
		ID:      uuid.Must(uuid.NewV7()),
		Name:    "Contact",
		Version: 1,
		Sections: []models.Section{{
			ID: "s1", Title: "Contact", Order: 1, IsDefault: true,
			Fields: []models.Field{{ID: "email", Type: models.FieldTypeEmail, Label: "Email", Required: true}},
		}},
		Navigation: models.NavigationSettings{Type: models.NavigationConditional},
	}
}

func newRequest(method, target, body string, id uuid.UUID) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	if id != uuid.Nil {
		r.SetPathValue("id", id.String())
	}

	return r
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) response.ProblemDetails {
	t.Helper()

	var problem response.ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))

	return problem
}

const createTemplateBody = `{
	"name": "Contact",
	"sections": [{"id": "s1", "title": "Contact", "order": 1,
		"fields": [{"id": "email", "type": "email", "label": "Email"}]}]
}`

func TestTemplatesHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockTemplatesService)
		handler := NewTemplatesHandler(svc)
		tmpl := sampleTemplate()

		svc.On("CreateTemplate", mock.Anything, mock.AnythingOfType("*models.CreateTemplateRequest")).
			Return(&service.TemplateResult{Template: tmpl}, nil)

		rec := httptest.NewRecorder()
		handler.Create(rec, newRequest(http.MethodPost, "/v1/templates", createTemplateBody, uuid.Nil))

		assert.Equal(t, http.StatusCreated, rec.Code)

		var got service.TemplateResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, tmpl.ID, got.Template.ID)
		svc.AssertExpectations(t)
	})

	t.Run("invalid body never reaches the service", func(t *testing.T) {
		svc := new(MockTemplatesService)
		handler := NewTemplatesHandler(svc)

		rec := httptest.NewRecorder()
		handler.Create(rec, newRequest(http.MethodPost, "/v1/templates", `{"name":""}`, uuid.Nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CreateTemplate", mock.Anything, mock.Anything)
	})

	t.Run("logic errors are unprocessable", func(t *testing.T) {
		svc := new(MockTemplatesService)
		handler := NewTemplatesHandler(svc)

		svc.On("CreateTemplate", mock.Anything, mock.Anything).Return(nil,
			huberrors.NewFieldsValidationError("template has invalid logic", []huberrors.FieldError{
				{FieldID: "email", Message: "condition references unknown field"},
			}))

		rec := httptest.NewRecorder()
		handler.Create(rec, newRequest(http.MethodPost, "/v1/templates", createTemplateBody, uuid.Nil))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		problem := decodeProblem(t, rec)
		require.Len(t, problem.Errors, 1)
		assert.Equal(t, "email", problem.Errors[0].Location)
	})
}

func TestTemplatesHandler_Get(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		err    error
		status int
	}{
		{name: "found", id: uuid.Must(uuid.NewV7()).String(), status: http.StatusOK},
		{name: "not found", id: uuid.Must(uuid.NewV7()).String(), err: huberrors.NewNotFoundError("template", "template not found"), status: http.StatusNotFound},
		{name: "bad uuid", id: "nope", status: http.StatusBadRequest},
		{name: "internal", id: uuid.Must(uuid.NewV7()).String(), err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTemplatesService)
			handler := NewTemplatesHandler(svc)

			if id, err := uuid.Parse(tt.id); err == nil {
				if tt.err != nil {
					svc.On("GetTemplate", mock.Anything, id).Return(nil, tt.err)
				} else {
					svc.On("GetTemplate", mock.Anything, id).Return(sampleTemplate(), nil)
				}
			}

			r := httptest.NewRequest(http.MethodGet, "/v1/templates/"+tt.id, nil)
			r.SetPathValue("id", tt.id)

			rec := httptest.NewRecorder()
			handler.Get(rec, r)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestTemplatesHandler_Update(t *testing.T) {
	t.Run("stale version conflicts", func(t *testing.T) {
		svc := new(MockTemplatesService)
		handler := NewTemplatesHandler(svc)
		id := uuid.Must(uuid.NewV7())

		svc.On("UpdateTemplate", mock.Anything, id, mock.MatchedBy(func(req *models.UpdateTemplateRequest) bool {
			return req.Version == 1 && req.Name != nil && *req.Name == "Renamed"
		})).Return(nil, huberrors.NewConflictError("template was modified"))

		rec := httptest.NewRecorder()
		handler.Update(rec, newRequest(http.MethodPatch, "/v1/templates/"+id.String(), `{"version":1,"name":"Renamed"}`, id))

		assert.Equal(t, http.StatusConflict, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestTemplatesHandler_List(t *testing.T) {
	svc := new(MockTemplatesService)
	handler := NewTemplatesHandler(svc)

	svc.On("ListTemplates", mock.Anything, mock.MatchedBy(func(f *models.ListTemplatesFilters) bool {
		return f.Limit == 10 && f.Offset == 20
	})).Return(&models.ListTemplatesResponse{Data: []models.Template{*sampleTemplate()}, Total: 21, Limit: 10, Offset: 20}, nil)

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/v1/templates?limit=10&offset=20", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestTemplatesHandler_Lint(t *testing.T) {
	handler := NewTemplatesHandler(new(MockTemplatesService))

	body := `{
		"name": "Broken",
		"sections": [{"id": "s1", "title": "One", "order": 1, "is_default": true, "fields": [
			{"id": "a", "type": "text", "conditional_logic": [
				{"id": "r1", "action": "show", "conditions": [{"field_id": "ghost", "operator": "equals", "value": "x"}]}
			]}
		]}]
	}`

	rec := httptest.NewRecorder()
	handler.Lint(rec, newRequest(http.MethodPost, "/v1/templates/lint", body, uuid.Nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got LintResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.False(t, got.Valid)
	assert.NotEmpty(t, got.Diagnostics)
}

func TestSessionsHandler_Open(t *testing.T) {
	svc := new(MockSessionsService)
	handler := NewSessionsHandler(svc)
	tmpl := sampleTemplate()
	sess := session.New(context.Background(), tmpl, nil)

	svc.On("Open", mock.Anything, mock.MatchedBy(func(req *models.OpenSessionRequest) bool {
		return req.TemplateID == tmpl.ID
	})).Return(sess, nil)

	rec := httptest.NewRecorder()
	handler.Open(rec, newRequest(http.MethodPost, "/public/sessions", `{"template_id":"`+tmpl.ID.String()+`"}`, uuid.Nil))

	require.Equal(t, http.StatusCreated, rec.Code)

	var view models.SessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, sess.ID(), view.SessionID)
	assert.Equal(t, "s1", view.CurrentSectionID)
	assert.Equal(t, models.ResponseStatusDraft, view.Status)
}

func TestSessionsHandler_ErrorMapping(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "unknown session", err: huberrors.NewNotFoundError("session", "session not found"), status: http.StatusNotFound},
		{
			name: "missing required answers",
			err: huberrors.NewFieldsValidationError("required fields are missing",
				[]huberrors.FieldError{{FieldID: "email", Message: "required"}}),
			status: http.StatusUnprocessableEntity,
		},
		{name: "already submitted", err: huberrors.NewAlreadySubmittedError("response already submitted"), status: http.StatusConflict},
		{name: "server full", err: huberrors.NewLimitExceededError("too many live sessions"), status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSessionsService)
			handler := NewSessionsHandler(svc)

			svc.On("Submit", mock.Anything, id).Return(models.SessionView{}, tt.err)

			rec := httptest.NewRecorder()
			handler.Submit(rec, newRequest(http.MethodPost, "/public/sessions/"+id.String()+"/submit", "", id))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestSessionsHandler_SetAnswer(t *testing.T) {
	svc := new(MockSessionsService)
	handler := NewSessionsHandler(svc)
	id := uuid.Must(uuid.NewV7())

	svc.On("SetAnswer", mock.Anything, id, mock.MatchedBy(func(req *models.SetAnswerRequest) bool {
		return req.FieldID == "email"
	})).Return(models.SessionView{SessionID: id, CompletionPercentage: 100}, nil)

	rec := httptest.NewRecorder()
	handler.SetAnswer(rec, newRequest(http.MethodPut, "/public/sessions/"+id.String()+"/answer",
		`{"field_id":"email","value":"a@b.co"}`, id))

	require.Equal(t, http.StatusOK, rec.Code)

	var view models.SessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 100, view.CompletionPercentage)
}

func TestSessionsHandler_Navigate(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	tests := []struct {
		name    string
		body    string
		svcErr  error
		status  int
		callsUp bool
	}{
		{name: "next", body: `{"direction":"next"}`, status: http.StatusOK, callsUp: true},
		{name: "jump", body: `{"section_id":"s2"}`, status: http.StatusOK, callsUp: true},
		{name: "neither", body: `{}`, status: http.StatusBadRequest},
		{name: "both", body: `{"direction":"next","section_id":"s2"}`, status: http.StatusBadRequest},
		{name: "unknown direction", body: `{"direction":"sideways"}`, status: http.StatusBadRequest},
		{
			name:    "blocked",
			body:    `{"direction":"previous"}`,
			svcErr:  huberrors.NewNavigationError("s1", "back navigation is disabled"),
			status:  http.StatusConflict,
			callsUp: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSessionsService)
			handler := NewSessionsHandler(svc)

			if tt.callsUp {
				svc.On("Navigate", mock.Anything, id, mock.Anything).Return(models.SessionView{SessionID: id}, tt.svcErr)
			}

			rec := httptest.NewRecorder()
			handler.Navigate(rec, newRequest(http.MethodPost, "/public/sessions/"+id.String()+"/navigate", tt.body, id))

			assert.Equal(t, tt.status, rec.Code)

			if !tt.callsUp {
				svc.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestResponsesHandler_ListByTemplate(t *testing.T) {
	svc := new(MockResponsesService)
	handler := NewResponsesHandler(svc)
	templateID := uuid.Must(uuid.NewV7())

	svc.On("ListResponses", mock.Anything, templateID, mock.MatchedBy(func(f *models.ListResponsesFilters) bool {
		return f.Status != nil && *f.Status == models.ResponseStatusSubmitted
	})).Return(&models.ListResponsesResponse{Data: []models.Response{}, Limit: 100}, nil)

	rec := httptest.NewRecorder()
	handler.ListByTemplate(rec, newRequest(http.MethodGet,
		"/v1/templates/"+templateID.String()+"/responses?status=submitted", "", templateID))

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestResponsesHandler_Get(t *testing.T) {
	svc := new(MockResponsesService)
	handler := NewResponsesHandler(svc)
	id := uuid.Must(uuid.NewV7())

	svc.On("GetResponse", mock.Anything, id).Return(nil, huberrors.NewNotFoundError("response", "response not found"))

	rec := httptest.NewRecorder()
	handler.Get(rec, newRequest(http.MethodGet, "/v1/responses/"+id.String(), "", id))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fixedCounter int

func (f fixedCounter) Len() int { return int(f) }

func TestHealthHandler(t *testing.T) {
	handler := NewHealthHandler(fixedCounter(3))

	rec := httptest.NewRecorder()
	handler.Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.Status(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, 3, body["live_sessions"], 0)
}
