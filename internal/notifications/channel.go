package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/ecolote/leadengine/pkg/logger"
	"github.com/ecolote/leadengine/pkg/redis"
)

// Channel delivers an encoded event to observers.
type Channel interface {
	Publish(ctx context.Context, event string, payload []byte) error
}

// RedisChannel publishes events on namespaced Redis pub/sub channels.
type RedisChannel struct {
	client *redis.Client
}

func NewRedisChannel(client *redis.Client) (*RedisChannel, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisChannel{client: client}, nil
}

func (c *RedisChannel) Publish(ctx context.Context, event string, payload []byte) error {
	if _, err := c.client.Publish(ctx, c.client.EventChannel(event), payload); err != nil {
		return fmt.Errorf("redis publish %s: %w", event, err)
	}
	return nil
}

// PubSubChannel publishes events to a GCP Pub/Sub topic; the event name travels
// as the "event" attribute.
type PubSubChannel struct {
	publisher *pubsub.Publisher
}

func NewPubSubChannel(publisher *pubsub.Publisher) (*PubSubChannel, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &PubSubChannel{publisher: publisher}, nil
}

func (c *PubSubChannel) Publish(ctx context.Context, event string, payload []byte) error {
	result := c.publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"event": event},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish %s: %w", event, err)
	}
	return nil
}

// Stop flushes pending messages.
func (c *PubSubChannel) Stop() {
	c.publisher.Stop()
}

// LogChannel writes events to the structured log only.
type LogChannel struct {
	logg *logger.Logger
}

func NewLogChannel(logg *logger.Logger) *LogChannel {
	return &LogChannel{logg: logg}
}

func (c *LogChannel) Publish(ctx context.Context, event string, payload []byte) error {
	if c.logg == nil {
		return nil
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"event": event, "payload": string(payload)})
	c.logg.Info(ctx, "lead event")
	return nil
}
