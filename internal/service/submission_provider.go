package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/models"
	"github.com/formbricks/forms/internal/observability"
)

// SubmissionDispatchInserter inserts submission_dispatch jobs (e.g. the River client).
type SubmissionDispatchInserter interface {
	InsertMany(ctx context.Context, params []river.InsertManyParams) ([]*rivertype.JobInsertResult, error)
}

// SubmissionProvider enqueues a delivery job for every submitted response whose
// template has a notify URL. Other events are ignored.
type SubmissionProvider struct {
	inserter    SubmissionDispatchInserter
	templates   TemplateGetter
	maxAttempts int
	metrics     observability.DeliveryMetrics
}

// NewSubmissionProvider creates the provider. metrics may be nil.
func NewSubmissionProvider(
	inserter SubmissionDispatchInserter, templates TemplateGetter, maxAttempts int,
	metrics observability.DeliveryMetrics,
) *SubmissionProvider {
	return &SubmissionProvider{
		inserter:    inserter,
		templates:   templates,
		maxAttempts: maxAttempts,
		metrics:     metrics,
	}
}

// PublishEvent implements eventPublisher.
func (p *SubmissionProvider) PublishEvent(ctx context.Context, event Event) {
	if event.Type != datatypes.ResponseSubmitted {
		return
	}

	resp, ok := event.Data.(*models.Response)
	if !ok || resp == nil {
		slog.ErrorContext(ctx, "response.submitted event without a response", "event_id", event.ID)

		return
	}

	t, err := p.templates.GetByID(ctx, resp.TemplateID)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, "template_load_failed")
		}

		slog.ErrorContext(ctx, "failed to load template for submission delivery",
			"event_id", event.ID,
			"template_id", resp.TemplateID,
			"response_id", resp.ID,
			"error", err,
		)

		return
	}

	if t.NotifyURL == nil || *t.NotifyURL == "" {
		return
	}

	const uniqueByPeriod = 24 * time.Hour

	params := []river.InsertManyParams{{
		Args: SubmissionDispatchArgs{
			EventID:    event.ID,
			EventType:  event.Type.String(),
			Timestamp:  event.Timestamp,
			TemplateID: resp.TemplateID,
			ResponseID: resp.ID,
			Response:   resp,
		},
		InsertOpts: &river.InsertOpts{
			MaxAttempts: p.maxAttempts,
			UniqueOpts: river.UniqueOpts{
				ByArgs:   true,
				ByPeriod: uniqueByPeriod,
			},
		},
	}}

	if _, err := p.inserter.InsertMany(ctx, params); err != nil {
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, "enqueue_failed")
		}

		slog.ErrorContext(ctx, "failed to enqueue submission delivery",
			"event_id", event.ID,
			"response_id", resp.ID,
			"error", err,
		)

		return
	}

	if p.metrics != nil {
		p.metrics.RecordJobsEnqueued(ctx, event.Type.String(), int64(len(params)))
	}
}

var _ eventPublisher = (*SubmissionProvider)(nil)
