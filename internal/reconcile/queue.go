// Package reconcile repairs cached wallet balances whose bookkeeping diverged
// from the ledger, in the background.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisQueueKey = "reconcile:v1:pending"

// Queue is a set of ledger addresses waiting for reconciliation.
type Queue interface {
	Enqueue(ctx context.Context, addresses ...string) error
	// Drain removes and returns up to max addresses.
	Drain(ctx context.Context, max int) ([]string, error)
	Len(ctx context.Context) (int64, error)
}

// RedisQueue keeps the pending set in Redis so that any instance can sweep it.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a Redis backed queue.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, addresses ...string) error {
	if len(addresses) == 0 {
		return nil
	}
	members := make([]any, len(addresses))
	for i, a := range addresses {
		members[i] = a
	}
	if err := q.client.SAdd(ctx, redisQueueKey, members...).Err(); err != nil {
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	return nil
}

func (q *RedisQueue) Drain(ctx context.Context, max int) ([]string, error) {
	out, err := q.client.SPopN(ctx, redisQueueKey, int64(max)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("drain reconcile: %w", err)
	}
	return out, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.SCard(ctx, redisQueueKey).Result()
}

// MemoryQueue is an in-process Queue.
type MemoryQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewMemoryQueue builds an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{pending: make(map[string]struct{})}
}

func (q *MemoryQueue) Enqueue(_ context.Context, addresses ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, a := range addresses {
		q.pending[a] = struct{}{}
	}
	return nil
}

func (q *MemoryQueue) Drain(_ context.Context, max int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, max)
	for a := range q.pending {
		if len(out) == max {
			break
		}
		out = append(out, a)
		delete(q.pending, a)
	}
	return out, nil
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}
