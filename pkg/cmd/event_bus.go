package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/quivela/relay/pkg/channels/gochannel"
	"github.com/quivela/relay/pkg/channels/kafka"
	"github.com/quivela/relay/pkg/eventbus"
)

// NewEventBus builds the bus selected by provider. "none" returns nil, in
// which case webhook fan-out runs inline in the publishing process.
func NewEventBus(provider string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "relay")
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create GoChannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "", "none":
		return nil
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
