package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the server named by rawURL, which is either a
// redis:// URL or a bare host:port address
func NewRedisClient(rawURL string) (*redis.Client, error) {
	if !strings.Contains(rawURL, "://") {
		return redis.NewClient(&redis.Options{Addr: rawURL}), nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// RedisBridge shares change events between processes over a Redis pub/sub channel.
// Events this process published are not fed back into its own hub.
type RedisBridge struct {
	client  *redis.Client
	channel string
	origin  string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisBridge creates a bridge that forwards remote events into hub
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
		logger:  logger,
	}
}

// Publish sends ev to the other processes
func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	ev.Origin = b.origin
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to encode change event", "error", err)
		return
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("failed to publish change event",
			"channel", b.channel,
			"error", err)
	}
}

// Listen subscribes to the channel and forwards remote events until ctx is done
func (b *RedisBridge) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	b.logger.Info("listening for remote change events", "channel", b.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("ignoring malformed change event",
					"channel", b.channel,
					"error", err)
				continue
			}
			if ev.Origin == b.origin {
				continue
			}
			b.hub.Publish(ctx, ev)
		}
	}
}
