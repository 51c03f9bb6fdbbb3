package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	EventImportCompleted EventType = "import.completed"
	EventImportFailed    EventType = "import.failed"
)

// ImportKind names the kind of bulk upload a run processed.
type ImportKind string

const (
	ImportEnrollments ImportKind = "enrollments"
	ImportDivisions   ImportKind = "divisions"
	ImportCourses     ImportKind = "courses"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Import Events
// ═══════════════════════════════════════════════════════════════════════════

// ImportCompletedEvent is emitted after a run has been committed.
// The aggregate is the run itself.
type ImportCompletedEvent struct {
	BaseEvent
	Kind     ImportKind     `json:"kind"`
	ActorID  string         `json:"actor_id"`
	Rows     int            `json:"rows"`
	Statuses map[string]int `json:"statuses"`
	Duration time.Duration  `json:"duration"`
}

// Payload implements Event interface.
func (e ImportCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":     string(e.Kind),
		"actor_id": e.ActorID,
		"rows":     e.Rows,
		"statuses": e.Statuses,
		"duration": e.Duration.String(),
	}
}

// NewImportCompletedEvent creates a new ImportCompletedEvent.
func NewImportCompletedEvent(runID string, kind ImportKind, actorID string, rows int, statuses map[string]int, took time.Duration) ImportCompletedEvent {
	return ImportCompletedEvent{
		BaseEvent: NewBaseEvent(EventImportCompleted, runID).WithCorrelationID(runID),
		Kind:      kind,
		ActorID:   actorID,
		Rows:      rows,
		Statuses:  statuses,
		Duration:  took,
	}
}

// ImportFailedEvent is emitted when a run is aborted and nothing was committed.
type ImportFailedEvent struct {
	BaseEvent
	Kind     ImportKind    `json:"kind"`
	ActorID  string        `json:"actor_id"`
	Reason   string        `json:"reason"`
	Duration time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e ImportFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":     string(e.Kind),
		"actor_id": e.ActorID,
		"reason":   e.Reason,
		"duration": e.Duration.String(),
	}
}

// NewImportFailedEvent creates a new ImportFailedEvent.
func NewImportFailedEvent(runID string, kind ImportKind, actorID string, reason error, took time.Duration) ImportFailedEvent {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return ImportFailedEvent{
		BaseEvent: NewBaseEvent(EventImportFailed, runID).WithCorrelationID(runID),
		Kind:      kind,
		ActorID:   actorID,
		Reason:    msg,
		Duration:  took,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
