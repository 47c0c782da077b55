package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/quivela/relay/pkg/events"
)

// decoders maps each event type to a constructor for the concrete struct the
// payload unmarshals into.
var decoders = map[events.EventType]func() any{
	events.WebhookEventQueuedEvent: func() any { return &events.WebhookEventQueued{} },
	events.WorkflowTriggeredEvent:  func() any { return &events.WorkflowTriggered{} },
	events.WorkflowFinishedEvent:   func() any { return &events.WorkflowFinished{} },
	events.WorkflowFailedEvent:     func() any { return &events.WorkflowFailed{} },
}

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	handlers   map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		handlers:   make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if _, ok := decoders[eventType]; !ok {
		return fmt.Errorf("unknown event type %q", eventType)
	}

	eb.handlers[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			if err := eb.dispatch(ctx, msg); err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) error {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	handler, ok := eb.handlers[eventType]
	if !ok {
		// No handler registered in this process; not an error.
		return nil
	}

	decode, ok := decoders[eventType]
	if !ok {
		return fmt.Errorf("no decoder for event type %q", eventType)
	}

	event := decode()
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return handler(ctx, event)
}

func (eb *WatermillEventBus) Close() error {
	return errors.Join(eb.publisher.Close(), eb.subscriber.Close())
}
