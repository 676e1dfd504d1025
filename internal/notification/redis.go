package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix prefixes the per-owner pub/sub channel.
const ChannelPrefix = "notifications:"

// RedisNotifier publishes messages on notifications:<destination> so that
// connected clients of any instance can be pushed updates.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier builds a Redis pub/sub notifier.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Channel returns the channel a destination subscribes to.
func Channel(destination string) string {
	return ChannelPrefix + destination
}

// Send publishes the JSON encoded message.
func (n *RedisNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, Channel(message.Destination), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
