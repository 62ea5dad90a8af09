package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/models"
)

const defaultResponseListLimit = 100

// ResponsesReader lists and loads stored responses.
type ResponsesReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Response, error)
	ListByTemplate(
		ctx context.Context, templateID uuid.UUID, status *models.ResponseStatus, limit, offset int,
	) ([]models.Response, error)
}

// ResponsesService gives template owners read access to stored responses.
type ResponsesService struct {
	repo      ResponsesReader
	templates TemplateGetter
}

// NewResponsesService creates a new responses service.
func NewResponsesService(repo ResponsesReader, templates TemplateGetter) *ResponsesService {
	return &ResponsesService{repo: repo, templates: templates}
}

// GetResponse retrieves a single stored response.
func (s *ResponsesService) GetResponse(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	return s.repo.GetByID(ctx, id)
}

// ListResponses returns the responses of a template, most recently updated first.
func (s *ResponsesService) ListResponses(
	ctx context.Context, templateID uuid.UUID, filters *models.ListResponsesFilters,
) (*models.ListResponsesResponse, error) {
	if _, err := s.templates.GetByID(ctx, templateID); err != nil {
		return nil, err
	}

	if filters.Limit <= 0 {
		filters.Limit = defaultResponseListLimit
	}

	responses, err := s.repo.ListByTemplate(ctx, templateID, filters.Status, filters.Limit, filters.Offset)
	if err != nil {
		return nil, err
	}

	return &models.ListResponsesResponse{Data: responses, Limit: filters.Limit, Offset: filters.Offset}, nil
}
