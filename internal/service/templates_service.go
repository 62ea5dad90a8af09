package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/engine"
	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

const defaultTemplateListLimit = 100

// TemplatesRepository defines data access for templates.
type TemplatesRepository interface {
	Create(ctx context.Context, t *models.Template) (*models.Template, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error)
	Update(ctx context.Context, t *models.Template, expectedVersion int) (*models.Template, error)
	List(ctx context.Context, filters *models.ListTemplatesFilters) ([]models.Template, error)
	Count(ctx context.Context) (int64, error)
}

// TemplatesService handles template authoring. Every stored template passes Lint
// without errors; warnings are returned to the author but do not block.
type TemplatesService struct {
	repo      TemplatesRepository
	publisher MessagePublisher
}

// NewTemplatesService creates a new templates service.
func NewTemplatesService(repo TemplatesRepository, publisher MessagePublisher) *TemplatesService {
	return &TemplatesService{repo: repo, publisher: publisher}
}

// TemplateResult is a stored template plus its lint warnings.
type TemplateResult struct {
	Template *models.Template   `json:"template"`
	Warnings []engine.Diagnostic `json:"warnings,omitempty"`
}

// CreateTemplate validates and stores a new template. A signing key is generated
// when a notify URL is set without one.
func (s *TemplatesService) CreateTemplate(ctx context.Context, req *models.CreateTemplateRequest) (*TemplateResult, error) {
	t := &models.Template{
		Name:        req.Name,
		Description: req.Description,
		Sections:    req.Sections,
		Navigation:  req.Navigation,
		NotifyURL:   req.NotifyURL,
		SigningKey:  req.SigningKey,
	}

	applyNavigationDefaults(&t.Navigation)

	warnings, err := lintTemplate(t)
	if err != nil {
		return nil, err
	}

	if t.NotifyURL != nil && t.SigningKey == "" {
		key, err := generateSigningKey()
		if err != nil {
			return nil, err
		}

		t.SigningKey = key
	}

	created, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEvent(ctx, datatypes.TemplateCreated, created)

	return &TemplateResult{Template: created, Warnings: warnings}, nil
}

// GetTemplate retrieves a single template by ID.
func (s *TemplatesService) GetTemplate(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTemplates retrieves templates, newest first.
func (s *TemplatesService) ListTemplates(ctx context.Context, filters *models.ListTemplatesFilters) (*models.ListTemplatesResponse, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultTemplateListLimit
	}

	var (
		templates []models.Template
		total     int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error

		templates, err = s.repo.List(gCtx, filters)

		return err
	})
	g.Go(func() error {
		var err error

		total, err = s.repo.Count(gCtx)

		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.ListTemplatesResponse{
		Data:   templates,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	}, nil
}

// UpdateTemplate applies req to the stored template when req.Version matches.
// Live sessions keep the template they were opened with.
func (s *TemplatesService) UpdateTemplate(ctx context.Context, id uuid.UUID, req *models.UpdateTemplateRequest) (*TemplateResult, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current

	var changed []string

	if req.Name != nil {
		next.Name = *req.Name
		changed = append(changed, "name")
	}

	if req.Description != nil {
		next.Description = req.Description
		changed = append(changed, "description")
	}

	if req.Sections != nil {
		next.Sections = req.Sections
		changed = append(changed, "sections")
	}

	if req.Navigation != nil {
		next.Navigation = *req.Navigation
		applyNavigationDefaults(&next.Navigation)
		changed = append(changed, "navigation")
	}

	if req.NotifyURL != nil {
		next.NotifyURL = req.NotifyURL
		changed = append(changed, "notify_url")

		if next.SigningKey == "" {
			if next.SigningKey, err = generateSigningKey(); err != nil {
				return nil, err
			}
		}
	}

	warnings, err := lintTemplate(&next)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, &next, req.Version)
	if err != nil {
		return nil, err
	}

	s.publisher.PublishEventWithChangedFields(ctx, datatypes.TemplateUpdated, updated, changed)

	return &TemplateResult{Template: updated, Warnings: warnings}, nil
}

// LintTemplate returns every diagnostic for t without storing it.
func (s *TemplatesService) LintTemplate(t *models.Template) []engine.Diagnostic {
	return engine.Lint(t)
}

// lintTemplate turns lint errors into one ValidationError and returns the warnings.
func lintTemplate(t *models.Template) ([]engine.Diagnostic, error) {
	diags := engine.Lint(t)

	var (
		warnings []engine.Diagnostic
		fields   []huberrors.FieldError
	)

	for _, d := range diags {
		if d.Severity != engine.SeverityError {
			warnings = append(warnings, d)

			continue
		}

		id := d.OwnerID
		if id == "" {
			id = d.FieldID
		}

		fields = append(fields, huberrors.FieldError{FieldID: id, Message: d.Message})
	}

	if len(fields) > 0 {
		slog.Debug("template rejected by lint", "errors", len(fields), "warnings", len(warnings))

		return nil, huberrors.NewFieldsValidationError("template has invalid logic", fields)
	}

	return warnings, nil
}

func applyNavigationDefaults(n *models.NavigationSettings) {
	if n.Type == "" {
		n.Type = models.NavigationConditional
	}
}

// generateSigningKey returns a Standard Webhooks secret: "whsec_" + base64(32 random bytes).
func generateSigningKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}

	return "whsec_" + base64.StdEncoding.EncodeToString(key), nil
}
