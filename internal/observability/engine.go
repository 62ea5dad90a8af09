package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics records form evaluation and session lifecycle metrics.
type EngineMetrics interface {
	RecordSnapshotDuration(ctx context.Context, duration time.Duration)
	RecordDiagnostic(ctx context.Context, kind string)
	RecordValueSetPass(ctx context.Context, applied int)
	RecordNavigationError(ctx context.Context)
	RecordSubmit(ctx context.Context, outcome string)
	RecordSave(ctx context.Context, outcome string)
	SetLiveSessions(count int)
}

// engineMetrics implements EngineMetrics.
type engineMetrics struct {
	snapshotDuration metric.Float64Histogram
	diagnostics      metric.Int64Counter
	valueSets        metric.Int64Counter
	navigationErrors metric.Int64Counter
	submits          metric.Int64Counter
	saves            metric.Int64Counter
	liveSessions     atomic.Int64
	liveGauge        metric.Int64ObservableGauge
}

// NewEngineMetrics creates EngineMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEngineMetrics(meter metric.Meter) (EngineMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	snapshotDuration, err := meter.Float64Histogram(
		MetricNameSnapshotDuration,
		metric.WithDescription("Time to compute one visibility snapshot (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot duration histogram: %w", err)
	}

	diagnostics, err := meter.Int64Counter(
		MetricNameRuleDiagnostics,
		metric.WithDescription("Template rule problems found while evaluating (first occurrence per session)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule diagnostics counter: %w", err)
	}

	valueSets, err := meter.Int64Counter(
		MetricNameValueSetsApplied,
		metric.WithDescription("Answers changed by setValue rules"),
	)
	if err != nil {
		return nil, fmt.Errorf("create value sets counter: %w", err)
	}

	navigationErrors, err := meter.Int64Counter(
		MetricNameNavigationErrors,
		metric.WithDescription("Rejected navigation attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create navigation errors counter: %w", err)
	}

	submits, err := meter.Int64Counter(
		MetricNameSubmits,
		metric.WithDescription("Submit attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create submits counter: %w", err)
	}

	saves, err := meter.Int64Counter(
		MetricNameSaves,
		metric.WithDescription("Draft saves by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create saves counter: %w", err)
	}

	m := &engineMetrics{
		snapshotDuration: snapshotDuration,
		diagnostics:      diagnostics,
		valueSets:        valueSets,
		navigationErrors: navigationErrors,
		submits:          submits,
		saves:            saves,
	}

	liveGauge, err := meter.Int64ObservableGauge(
		MetricNameLiveSessions,
		metric.WithDescription("Respondent sessions currently held in memory"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.liveSessions.Load())

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create live sessions gauge: %w", err)
	}

	m.liveGauge = liveGauge

	return m, nil
}

func attrOutcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedOutcomes))
}

func (m *engineMetrics) RecordSnapshotDuration(ctx context.Context, duration time.Duration) {
	m.snapshotDuration.Record(ctx, duration.Seconds())
}

func (m *engineMetrics) RecordDiagnostic(ctx context.Context, kind string) {
	m.diagnostics.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrKind, NormalizeReason(kind, AllowedDiagnosticKinds)),
	))
}

func (m *engineMetrics) RecordValueSetPass(ctx context.Context, applied int) {
	m.valueSets.Add(ctx, int64(applied))
}

func (m *engineMetrics) RecordNavigationError(ctx context.Context) {
	m.navigationErrors.Add(ctx, 1)
}

func (m *engineMetrics) RecordSubmit(ctx context.Context, outcome string) {
	m.submits.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
}

func (m *engineMetrics) RecordSave(ctx context.Context, outcome string) {
	m.saves.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
}

func (m *engineMetrics) SetLiveSessions(count int) {
	m.liveSessions.Store(int64(count))
}
