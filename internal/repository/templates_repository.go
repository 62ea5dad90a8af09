package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

// TemplatesRepository handles data access for form templates. Sections and
// navigation settings are stored as JSONB.
type TemplatesRepository struct {
	db *pgxpool.Pool
}

// NewTemplatesRepository creates a new templates repository.
func NewTemplatesRepository(db *pgxpool.Pool) *TemplatesRepository {
	return &TemplatesRepository{db: db}
}

const templateColumns = `id, name, description, version, sections, navigation, notify_url, signing_key, created_at, updated_at`

// Create inserts a new template at version 1.
func (r *TemplatesRepository) Create(ctx context.Context, t *models.Template) (*models.Template, error) {
	sections, navigation, err := marshalDefinition(t)
	if err != nil {
		return nil, err
	}

	id := t.ID
	if id == uuid.Nil {
		id, err = uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate template id: %w", err)
		}
	}

	query := `
		INSERT INTO templates (id, name, description, version, sections, navigation, notify_url, signing_key)
		VALUES ($1, $2, $3, 1, $4, $5, $6, $7)
		RETURNING ` + templateColumns

	row := r.db.QueryRow(ctx, query,
		id, t.Name, t.Description, sections, navigation, t.NotifyURL, t.SigningKey,
	)

	created, err := scanTemplate(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			return nil, huberrors.NewConflictError("template with this id already exists")
		}

		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return created, nil
}

// GetByID retrieves a single template by ID.
func (r *TemplatesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("template", "template not found")
		}

		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return t, nil
}

// Update replaces the definition of a template when expectedVersion matches the
// stored version, and increments the version. A stale version yields a ConflictError.
func (r *TemplatesRepository) Update(ctx context.Context, t *models.Template, expectedVersion int) (*models.Template, error) {
	sections, navigation, err := marshalDefinition(t)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE templates
		SET name = $1, description = $2, sections = $3, navigation = $4, notify_url = $5,
		    version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8
		RETURNING ` + templateColumns

	updated, err := scanTemplate(r.db.QueryRow(ctx, query,
		t.Name, t.Description, sections, navigation, t.NotifyURL, time.Now(), t.ID, expectedVersion,
	))
	if err == nil {
		return updated, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	// No row matched: either the template is gone or the version moved on.
	if _, getErr := r.GetByID(ctx, t.ID); getErr != nil {
		return nil, getErr
	}

	return nil, huberrors.NewConflictError(
		fmt.Sprintf("template version %d is stale", expectedVersion))
}

// List retrieves templates, newest first.
func (r *TemplatesRepository) List(ctx context.Context, filters *models.ListTemplatesFilters) ([]models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC`

	var args []any

	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []models.Template{}

	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// Count returns the total number of templates.
func (r *TemplatesRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}

	return count, nil
}

func marshalDefinition(t *models.Template) (sections, navigation []byte, err error) {
	sections, err = json.Marshal(t.Sections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode sections: %w", err)
	}

	navigation, err = json.Marshal(t.Navigation)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode navigation: %w", err)
	}

	return sections, navigation, nil
}

func scanTemplate(row pgx.Row) (*models.Template, error) {
	var (
		t          models.Template
		sections   []byte
		navigation []byte
	)

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Version, &sections, &navigation,
		&t.NotifyURL, &t.SigningKey, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(sections, &t.Sections); err != nil {
		return nil, fmt.Errorf("failed to decode sections: %w", err)
	}

	if err := json.Unmarshal(navigation, &t.Navigation); err != nil {
		return nil, fmt.Errorf("failed to decode navigation: %w", err)
	}

	return &t, nil
}
