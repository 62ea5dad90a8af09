package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/models"
)

// ResponsesRepository stores draft and submitted responses.
type ResponsesRepository struct {
	db *pgxpool.Pool
}

// NewResponsesRepository creates a new responses repository.
func NewResponsesRepository(db *pgxpool.Pool) *ResponsesRepository {
	return &ResponsesRepository{db: db}
}

const responseColumns = `id, template_id, template_version, status, answers, current_section_id,
	completion_percentage, submitter, created_at, updated_at, submitted_at`

// PersistResponse upserts resp. Drafts may be overwritten by newer writes; a submitted
// response is final. Writing the same response with the same UpdatedAt again changes nothing,
// an older write yields a ConflictError, and any write over a submitted response yields
// an AlreadySubmittedError.
func (r *ResponsesRepository) PersistResponse(ctx context.Context, resp *models.Response) error {
	answers, err := json.Marshal(resp.Answers)
	if err != nil {
		return fmt.Errorf("failed to encode answers: %w", err)
	}

	var submitter []byte
	if resp.Submitter != nil {
		submitter, err = json.Marshal(resp.Submitter)
		if err != nil {
			return fmt.Errorf("failed to encode submitter: %w", err)
		}
	}

	// Postgres keeps microseconds.
	updatedAt := resp.UpdatedAt.Truncate(time.Microsecond)

	query := `
		INSERT INTO responses (
			id, template_id, template_version, status, answers, current_section_id,
			completion_percentage, submitter, created_at, updated_at, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			template_version      = EXCLUDED.template_version,
			status                = EXCLUDED.status,
			answers               = EXCLUDED.answers,
			current_section_id    = EXCLUDED.current_section_id,
			completion_percentage = EXCLUDED.completion_percentage,
			submitter             = EXCLUDED.submitter,
			updated_at            = EXCLUDED.updated_at,
			submitted_at          = EXCLUDED.submitted_at
		WHERE responses.status = 'draft' AND responses.updated_at <= EXCLUDED.updated_at
	`

	tag, err := r.db.Exec(ctx, query,
		resp.ID, resp.TemplateID, resp.TemplateVersion, resp.Status, answers, resp.CurrentSectionID,
		resp.CompletionPercentage, submitter, resp.CreatedAt, updatedAt, resp.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to persist response: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return nil
	}

	var (
		status        models.ResponseStatus
		storedUpdated time.Time
	)

	err = r.db.QueryRow(ctx, `SELECT status, updated_at FROM responses WHERE id = $1`, resp.ID).
		Scan(&status, &storedUpdated)
	if err != nil {
		return fmt.Errorf("failed to read stored response: %w", err)
	}

	return persistOutcome(status, storedUpdated, resp.Status, updatedAt)
}

// persistOutcome classifies an upsert that changed no row.
func persistOutcome(stored models.ResponseStatus, storedUpdated time.Time, incoming models.ResponseStatus, incomingUpdated time.Time) error {
	if stored == incoming && storedUpdated.Equal(incomingUpdated) {
		return nil
	}

	if stored == models.ResponseStatusSubmitted {
		return huberrors.NewAlreadySubmittedError("response already submitted")
	}

	return huberrors.NewConflictError("a newer version of this response is already stored")
}

// GetByID retrieves a single response by ID.
func (r *ResponsesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE id = $1`

	resp, err := scanResponse(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("response", "response not found")
		}

		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	return resp, nil
}

// ListByTemplate returns the responses of a template, newest first, optionally
// restricted to one status.
func (r *ResponsesRepository) ListByTemplate(
	ctx context.Context, templateID uuid.UUID, status *models.ResponseStatus, limit, offset int,
) ([]models.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE template_id = $1`
	args := []any{templateID}

	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY updated_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	responses := []models.Response{}

	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		responses = append(responses, *resp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating responses: %w", err)
	}

	return responses, nil
}

func scanResponse(row pgx.Row) (*models.Response, error) {
	var (
		resp      models.Response
		answers   []byte
		submitter []byte
	)

	err := row.Scan(
		&resp.ID, &resp.TemplateID, &resp.TemplateVersion, &resp.Status, &answers, &resp.CurrentSectionID,
		&resp.CompletionPercentage, &submitter, &resp.CreatedAt, &resp.UpdatedAt, &resp.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}

	resp.Answers = models.AnswerSet{}
	if err := json.Unmarshal(answers, &resp.Answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}

	if len(submitter) > 0 {
		resp.Submitter = &models.SubmitterInfo{}
		if err := json.Unmarshal(submitter, resp.Submitter); err != nil {
			return nil, fmt.Errorf("failed to decode submitter: %w", err)
		}
	}

	return &resp, nil
}
