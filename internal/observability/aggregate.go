package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every metric collector of the service. When metrics are disabled NewMetrics
// returns nil, and components receive nil interfaces which they already handle.
type Metrics struct {
	Engine   EngineMetrics
	Events   EventMetrics
	Delivery DeliveryMetrics
	Cache    CacheMetrics
	API      APIMetrics
}

// NewMetrics creates all collectors from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	engine, err := NewEngineMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("engine metrics: %w", err)
	}

	events, err := NewEventMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("event metrics: %w", err)
	}

	delivery, err := NewDeliveryMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("delivery metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Engine:   engine,
		Events:   events,
		Delivery: delivery,
		Cache:    cache,
		API:      api,
	}, nil
}
