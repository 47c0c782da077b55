// Package intake consumes business events pushed onto a Redis list by the
// surrounding application and feeds them into webhook fan-out and
// event-triggered workflows.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const DefaultQueue = "relay:events"

// Message is the shape producers push onto the intake queue.
type Message struct {
	TenantID  string         `json:"tenant_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Handler receives each decoded intake message.
type Handler func(ctx context.Context, msg Message) error

type Consumer struct {
	Queue      string
	Connection map[string]string

	client  redis.UniversalClient
	handler Handler
	logger  *slog.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewConsumer(connection map[string]string, queue string, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}

	return &Consumer{
		Queue:      queue,
		Connection: connection,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "intake",
			"queue", queue,
		),
	}
}

func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	c.logger.InfoContext(ctx, "Starting intake consumer")
	c.handler = handler

	err := c.initializeClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize intake client: %w", err)
	}

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) initializeClient(ctx context.Context) error {
	addr := c.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	password := c.Connection["password"]
	db := 0

	if dbStr := c.Connection["db"]; dbStr != "" {
		var err error
		if db, err = c.parseDB(dbStr); err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return nil
}

func (c *Consumer) parseDB(dbStr string) (int, error) {
	var db int

	_, err := fmt.Sscanf(dbStr, "%d", &db)

	return db, err
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Intake consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping intake consumer")

			return
		default:
			err := c.processMessage(ctx)
			if err != nil {
				c.logger.ErrorContext(ctx, "Error processing intake message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, 1*time.Second, c.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return fmt.Errorf("malformed intake message: %w", err)
	}

	if msg.TenantID == "" || msg.EventType == "" {
		return errors.New("intake message missing tenant_id or event_type")
	}

	if err := c.handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Intake handler failed", "event_type", msg.EventType, "error", err)
	}

	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping intake consumer")

	close(c.stopCh)
	c.wg.Wait()

	if c.client != nil {
		err := c.client.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
