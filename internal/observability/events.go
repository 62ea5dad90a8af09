package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventMetrics records response/template event fan-out metrics.
type EventMetrics interface {
	RecordEventPublished(ctx context.Context, eventType string)
	RecordEventDiscarded(ctx context.Context, eventType string)
	RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string)
	SetChannelDepth(depth int)
	SetRiverQueueDepth(depth int)
}

type eventMetrics struct {
	published    metric.Int64Counter
	discarded    metric.Int64Counter
	fanOut       metric.Float64Histogram
	channelDepth atomic.Int64
	riverQueue   atomic.Int64
	depthGauges  metric.Registration
}

// NewEventMetrics creates EventMetrics and registers the depth gauges.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewEventMetrics(meter metric.Meter) (EventMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	published, err := meter.Int64Counter(
		MetricNameEventsPublished,
		metric.WithDescription("Events accepted by the message publisher"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events published counter: %w", err)
	}

	discarded, err := meter.Int64Counter(
		MetricNameEventsDiscarded,
		metric.WithDescription("Events dropped because the publisher channel was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("create events discarded counter: %w", err)
	}

	fanOut, err := meter.Float64Histogram(
		MetricNameFanOutDuration,
		metric.WithDescription("Time to hand one event to every provider (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fan-out duration histogram: %w", err)
	}

	channelDepth, err := meter.Int64ObservableGauge(
		MetricNameEventChannelDepth,
		metric.WithDescription("Events waiting in the publisher channel"),
	)
	if err != nil {
		return nil, fmt.Errorf("create channel depth gauge: %w", err)
	}

	riverQueue, err := meter.Int64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("Submission notification jobs not yet finished (available, retryable, scheduled)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	m := &eventMetrics{
		published: published,
		discarded: discarded,
		fanOut:    fanOut,
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(channelDepth, m.channelDepth.Load())
		o.ObserveInt64(riverQueue, m.riverQueue.Load())

		return nil
	}, channelDepth, riverQueue)
	if err != nil {
		return nil, fmt.Errorf("register depth gauges: %w", err)
	}

	m.depthGauges = reg

	return m, nil
}

func attrEventType(v string) attribute.KeyValue {
	return attribute.String(AttrEventType, NormalizeEventType(v))
}

func (e *eventMetrics) RecordEventPublished(ctx context.Context, eventType string) {
	e.published.Add(ctx, 1, metric.WithAttributes(attrEventType(eventType)))
}

func (e *eventMetrics) RecordEventDiscarded(ctx context.Context, eventType string) {
	e.discarded.Add(ctx, 1, metric.WithAttributes(attrEventType(eventType)))
}

func (e *eventMetrics) RecordFanOutDuration(ctx context.Context, duration time.Duration, eventType string) {
	e.fanOut.Record(ctx, duration.Seconds(), metric.WithAttributes(attrEventType(eventType)))
}

func (e *eventMetrics) SetChannelDepth(depth int) {
	e.channelDepth.Store(int64(depth))
}

func (e *eventMetrics) SetRiverQueueDepth(depth int) {
	e.riverQueue.Store(int64(depth))
}
