package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DeliveryMetrics records the submission notification pipeline (provider, worker, sender).
type DeliveryMetrics interface {
	RecordJobsEnqueued(ctx context.Context, eventType string, count int64)
	RecordProviderError(ctx context.Context, reason string)
	RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration)
}

// deliveryMetrics implements DeliveryMetrics.
type deliveryMetrics struct {
	jobsEnqueued     metric.Int64Counter
	providerErrors   metric.Int64Counter
	deliveries       metric.Int64Counter
	deliveryDuration metric.Float64Histogram
}

// NewDeliveryMetrics creates DeliveryMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewDeliveryMetrics(meter metric.Meter) (DeliveryMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameDeliveryJobsEnqueued,
		metric.WithDescription("Total submission notification jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create jobs enqueued counter: %w", err)
	}

	providerErrors, err := meter.Int64Counter(
		MetricNameDeliveryProviderError,
		metric.WithDescription("Total submission provider errors (template load or enqueue failures)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create provider errors counter: %w", err)
	}

	deliveries, err := meter.Int64Counter(
		MetricNameDeliveries,
		metric.WithDescription("Total submission notification outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create deliveries counter: %w", err)
	}

	deliveryDuration, err := meter.Float64Histogram(
		MetricNameDeliveryDuration,
		metric.WithDescription("Submission notification HTTP duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create delivery duration histogram: %w", err)
	}

	return &deliveryMetrics{
		jobsEnqueued:     jobsEnqueued,
		providerErrors:   providerErrors,
		deliveries:       deliveries,
		deliveryDuration: deliveryDuration,
	}, nil
}

func (d *deliveryMetrics) RecordJobsEnqueued(ctx context.Context, eventType string, count int64) {
	d.jobsEnqueued.Add(ctx, count, metric.WithAttributes(attrEventType(eventType)))
}

func (d *deliveryMetrics) RecordProviderError(ctx context.Context, reason string) {
	d.providerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, NormalizeReason(reason, AllowedProviderReasons)),
	))
}

func (d *deliveryMetrics) RecordDelivery(ctx context.Context, eventType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attrEventType(eventType),
		attribute.String(AttrStatus, NormalizeStatus(status)),
	)

	d.deliveries.Add(ctx, 1, attrs)
	d.deliveryDuration.Record(ctx, duration.Seconds(), attrs)
}
