package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/observability"
	"github.com/formbricks/forms/pkg/cache"
)

const cacheNameTemplate = "template"

// cachingTemplatesRepo serves GetByID from a LoaderCache. Writes refresh the entry.
type cachingTemplatesRepo struct {
	inner   TemplatesRepository
	byID    *cache.LoaderCache[uuid.UUID, *models.Template]
	metrics observability.CacheMetrics
}

// NewCachingTemplatesRepository wraps inner with a template cache. metrics may be nil.
func NewCachingTemplatesRepository(
	inner TemplatesRepository,
	byID *cache.LoaderCache[uuid.UUID, *models.Template],
	metrics observability.CacheMetrics,
) TemplatesRepository {
	return &cachingTemplatesRepo{inner: inner, byID: byID, metrics: metrics}
}

func (r *cachingTemplatesRepo) Create(ctx context.Context, t *models.Template) (*models.Template, error) {
	created, err := r.inner.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}

	r.byID.Set(created.ID, created)

	return created, nil
}

func (r *cachingTemplatesRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	t, hit, err := r.byID.GetWithStats(ctx, id, r.inner.GetByID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	if r.metrics != nil {
		if hit {
			r.metrics.RecordHit(ctx, cacheNameTemplate)
		} else {
			r.metrics.RecordMiss(ctx, cacheNameTemplate)
		}
	}

	return t, nil
}

func (r *cachingTemplatesRepo) Update(ctx context.Context, t *models.Template, expectedVersion int) (*models.Template, error) {
	updated, err := r.inner.Update(ctx, t, expectedVersion)
	if err != nil {
		// a conflict means our cached copy may be stale too
		r.byID.Invalidate(t.ID)

		return nil, fmt.Errorf("update template: %w", err)
	}

	r.byID.Set(updated.ID, updated)

	return updated, nil
}

func (r *cachingTemplatesRepo) List(ctx context.Context, filters *models.ListTemplatesFilters) ([]models.Template, error) {
	templates, err := r.inner.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	return templates, nil
}

func (r *cachingTemplatesRepo) Count(ctx context.Context) (int64, error) {
	n, err := r.inner.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count templates: %w", err)
	}

	return n, nil
}
