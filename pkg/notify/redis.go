package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier enqueues notifications onto a Redis list for an external
// delivery worker to drain.
type RedisNotifier struct {
	client *redis.Client
	queue  string
}

// NewRedisNotifier creates a notifier pushing to the given queue key.
func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	if queue == "" {
		queue = "notifications:outbox"
	}
	return &RedisNotifier{client: client, queue: queue}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.LPush(ctx, n.queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}
