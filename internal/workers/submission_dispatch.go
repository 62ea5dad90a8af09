// Package workers provides River job workers (submission notification delivery).
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/formbricks/forms/internal/huberrors"
	"github.com/formbricks/forms/internal/observability"
	"github.com/formbricks/forms/internal/service"
)

// SubmissionDeliveryTimeout bounds one delivery, transport retries included.
const SubmissionDeliveryTimeout = 45 * time.Second

// SubmissionDispatchWorker delivers one submitted response to its template's notify URL.
type SubmissionDispatchWorker struct {
	river.WorkerDefaults[service.SubmissionDispatchArgs]

	templates service.TemplateGetter
	sender    service.SubmissionSender
	metrics   observability.DeliveryMetrics
}

// NewSubmissionDispatchWorker creates the worker. metrics may be nil when metrics are disabled.
func NewSubmissionDispatchWorker(
	templates service.TemplateGetter, sender service.SubmissionSender, metrics observability.DeliveryMetrics,
) *SubmissionDispatchWorker {
	return &SubmissionDispatchWorker{templates: templates, sender: sender, metrics: metrics}
}

// Timeout limits how long a single delivery can run.
func (w *SubmissionDispatchWorker) Timeout(*river.Job[service.SubmissionDispatchArgs]) time.Duration {
	return SubmissionDeliveryTimeout
}

// Work loads the template and sends the payload once. River retries on error.
func (w *SubmissionDispatchWorker) Work(ctx context.Context, job *river.Job[service.SubmissionDispatchArgs]) error {
	args := job.Args
	start := time.Now()
	logger := slog.With("event_id", args.EventID, "response_id", args.ResponseID, "template_id", args.TemplateID)

	t, err := w.templates.GetByID(ctx, args.TemplateID)
	if err != nil {
		if errors.Is(err, huberrors.ErrNotFound) {
			w.record(ctx, args.EventType, "failed_final", start)
			logger.WarnContext(ctx, "submission dispatch: template gone, dropping delivery")

			return river.JobCancel(err)
		}

		return fmt.Errorf("load template: %w", err)
	}

	if t.NotifyURL == nil || *t.NotifyURL == "" {
		logger.DebugContext(ctx, "submission dispatch: notify URL removed, skipping")

		return nil
	}

	err = w.sender.Send(ctx, t, service.PayloadFromArgs(args))
	if err == nil {
		w.record(ctx, args.EventType, "success", start)

		return nil
	}

	if errors.Is(err, service.ErrEndpointGone) {
		w.record(ctx, args.EventType, "failed_final", start)
		logger.WarnContext(ctx, "submission dispatch: endpoint gone, not retrying", "url", *t.NotifyURL)

		return river.JobCancel(err)
	}

	if job.Attempt >= job.MaxAttempts {
		w.record(ctx, args.EventType, "failed_final", start)
		logger.ErrorContext(ctx, "submission delivery failed after max attempts",
			"attempt", job.Attempt,
			"url", *t.NotifyURL,
			"error", err,
		)

		return fmt.Errorf("submission send (final attempt): %w", err)
	}

	w.record(ctx, args.EventType, "retry", start)
	logger.WarnContext(ctx, "submission delivery failed, will retry",
		"attempt", job.Attempt,
		"url", *t.NotifyURL,
		"error", err,
	)

	return fmt.Errorf("submission send: %w", err)
}

func (w *SubmissionDispatchWorker) record(ctx context.Context, eventType, status string, start time.Time) {
	if w.metrics != nil {
		w.metrics.RecordDelivery(ctx, eventType, status, time.Since(start))
	}
}
