// Package kafka provides a Kafka-backed channel for multi-process deployments.
// Brokers come from the KAFKA_BROKERS environment variable as a comma-separated
// list.
package kafka

import (
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

func CreateChannel(logger watermill.LoggerAdapter, serviceName string) (*kafka.Publisher, *kafka.Subscriber, error) {
	brokers, err := brokersFromEnv()
	if err != nil {
		return nil, nil, err
	}

	subscriber, err := newSubscriber(logger, brokers, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	publisher, err := newPublisher(logger, brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return publisher, subscriber, nil
}

func brokersFromEnv() ([]string, error) {
	raw := os.Getenv("KAFKA_BROKERS")

	brokers := make([]string, 0)

	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	if len(brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS environment variable is not set or empty")
	}

	return brokers, nil
}

func newSubscriber(logger watermill.LoggerAdapter, brokers []string, serviceName string) (*kafka.Subscriber, error) {
	saramaConfig := kafka.DefaultSaramaSubscriberConfig()
	// Replay from the beginning on first join so events queued before the
	// consumer group existed are not lost.
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	return kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			ConsumerGroup:         "cg-" + serviceName,
			OTELEnabled:           true,
		},
		logger,
	)
}

func newPublisher(logger watermill.LoggerAdapter, brokers []string) (*kafka.Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true

	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			OTELEnabled:           true,
		},
		logger,
	)
}
