// Package eventbus carries relay domain events between the API and runner
// processes over a watermill-backed channel.
package eventbus

import (
	"context"

	"github.com/quivela/relay/pkg/events"
)

// Event is anything with a declared event type. All events in pkg/events
// qualify.
type Event interface {
	GetType() events.EventType
}

// EventHandler processes one decoded event. Returning an error nacks the
// underlying message.
type EventHandler func(ctx context.Context, event any) error

// EventBus publishes domain events and dispatches received ones to registered
// handlers. Handle must be called before Subscribe; registrations made after
// the subscribe loop starts are not picked up.
type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
}
