package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/observability"
)

const (
	defaultEventBufferSize = 1024
	defaultPerEventTimeout = 10 * time.Second
)

// Event is one domain event handed to every registered provider.
type Event struct {
	ID            uuid.UUID // UUIDv7, time-ordered
	Type          datatypes.EventType
	Timestamp     time.Time
	Data          any      // *models.Response or *models.Template
	ChangedFields []string // answer field IDs for response.updated
}

// MessagePublisher publishes domain events without blocking the caller.
type MessagePublisher interface {
	PublishEvent(ctx context.Context, eventType datatypes.EventType, data any)
	PublishEventWithChangedFields(ctx context.Context, eventType datatypes.EventType, data any, changedFields []string)
}

// eventPublisher is implemented by providers that receive the full Event.
type eventPublisher interface {
	PublishEvent(ctx context.Context, event Event)
}

// MessagePublisherManager buffers events in a channel and fans each one out to
// the registered providers from a single worker goroutine. When the buffer is
// full new events are dropped.
type MessagePublisherManager struct {
	eventChan       chan Event
	providers       []eventPublisher
	perEventTimeout time.Duration
	metrics         observability.EventMetrics
	wg              sync.WaitGroup
}

// NewMessagePublisherManager starts the fan-out worker. Non-positive sizes fall
// back to defaults. metrics may be nil.
func NewMessagePublisherManager(bufferSize int, perEventTimeout time.Duration, metrics observability.EventMetrics) *MessagePublisherManager {
	if bufferSize <= 0 {
		bufferSize = defaultEventBufferSize
	}

	if perEventTimeout <= 0 {
		perEventTimeout = defaultPerEventTimeout
	}

	m := &MessagePublisherManager{
		eventChan:       make(chan Event, bufferSize),
		perEventTimeout: perEventTimeout,
		metrics:         metrics,
	}

	m.wg.Add(1)

	go m.run()

	return m
}

// RegisterProvider adds a provider. Call during startup only, before publishing.
func (m *MessagePublisherManager) RegisterProvider(provider eventPublisher) {
	m.providers = append(m.providers, provider)
}

// PublishEvent publishes an event without changed fields.
func (m *MessagePublisherManager) PublishEvent(ctx context.Context, eventType datatypes.EventType, data any) {
	m.PublishEventWithChangedFields(ctx, eventType, data, nil)
}

// PublishEventWithChangedFields enqueues an event for all providers.
func (m *MessagePublisherManager) PublishEventWithChangedFields(
	ctx context.Context, eventType datatypes.EventType, data any, changedFields []string,
) {
	event := Event{
		ID:            uuid.Must(uuid.NewV7()),
		Type:          eventType,
		Timestamp:     time.Now(),
		Data:          data,
		ChangedFields: changedFields,
	}

	select {
	case m.eventChan <- event:
		if m.metrics != nil {
			m.metrics.RecordEventPublished(ctx, eventType.String())
			m.metrics.SetChannelDepth(len(m.eventChan))
		}

		slog.DebugContext(ctx, "event published", "event_id", event.ID, "event_type", event.Type)
	default:
		if m.metrics != nil {
			m.metrics.RecordEventDiscarded(ctx, eventType.String())
		}

		slog.WarnContext(ctx, "event channel full, event dropped", "event_id", event.ID, "event_type", event.Type)
	}
}

func (m *MessagePublisherManager) run() {
	defer m.wg.Done()

	for event := range m.eventChan {
		// bounded so one stuck provider cannot stall the queue forever
		ctx, cancel := context.WithTimeout(context.Background(), m.perEventTimeout)
		start := time.Now()

		for _, provider := range m.providers {
			provider.PublishEvent(ctx, event)
		}

		cancel()

		if m.metrics != nil {
			m.metrics.RecordFanOutDuration(ctx, time.Since(start), event.Type.String())
			m.metrics.SetChannelDepth(len(m.eventChan))
		}
	}
}

// Shutdown stops accepting events, drains the buffer and waits for the worker.
func (m *MessagePublisherManager) Shutdown() {
	close(m.eventChan)
	m.wg.Wait()
}
