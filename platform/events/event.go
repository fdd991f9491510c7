// Package events defines the event bus contract the modules communicate
// over. Lead mutations and sync state transitions are announced as events so
// consumers like the stats cache and the scheduler stay decoupled from the
// services that raise them. The in-memory bus lives in inmemory.go; the
// concrete event types live in internal/events.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event. EventName doubles as the
// subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish fans the event out asynchronously. Handler failures are logged
	// by the bus, never returned; publishers do not block on subscribers.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler before returning and joins their
	// errors. Used where the caller needs the side effects applied before
	// continuing.
	PublishSync(ctx context.Context, event Event) error
	// Subscribe registers a handler for the given event name.
	Subscribe(eventName string, handler Handler)
}

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// BaseEvent carries the occurrence timestamp shared by all events. Embed it
// and implement EventName on the concrete type.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}
