package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when an inbox holds no notification with the given id.
var ErrNotFound = errors.New("notification not found")

// InboxCapacity bounds how many notifications are kept per owner.
const InboxCapacity = 100

// Stored is a notification kept in its destination's inbox.
type Stored struct {
	ID string `json:"id"`
	Message
}

// Inbox keeps delivered notifications so owners can read them later.
type Inbox interface {
	Notifier
	// List returns the owner's notifications, newest first.
	List(ctx context.Context, owner string) ([]Stored, error)
	Delete(ctx context.Context, owner, id string) error
	Clear(ctx context.Context, owner string) error
}

func stamp(message Message) Stored {
	if message.SentAt.IsZero() {
		message.SentAt = time.Now().UTC()
	}
	return Stored{ID: uuid.NewString(), Message: message}
}

// RedisInbox stores each owner's notifications in a capped Redis list.
type RedisInbox struct {
	client *redis.Client
}

// NewRedisInbox builds an inbox backed by Redis lists.
func NewRedisInbox(client *redis.Client) *RedisInbox {
	return &RedisInbox{client: client}
}

func inboxKey(owner string) string {
	return "notifications:inbox:" + owner
}

// Send prepends the message to the destination's inbox.
func (i *RedisInbox) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(stamp(message))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	key := inboxKey(message.Destination)
	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, InboxCapacity-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

// List returns the stored notifications, newest first.
func (i *RedisInbox) List(ctx context.Context, owner string) ([]Stored, error) {
	raw, err := i.client.LRange(ctx, inboxKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]Stored, 0, len(raw))
	for _, item := range raw {
		var s Stored
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Delete removes one notification by id.
func (i *RedisInbox) Delete(ctx context.Context, owner, id string) error {
	key := inboxKey(owner)
	raw, err := i.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list notifications: %w", err)
	}
	for _, item := range raw {
		var s Stored
		if json.Unmarshal([]byte(item), &s) != nil || s.ID != id {
			continue
		}
		removed, err := i.client.LRem(ctx, key, 1, item).Result()
		if err != nil {
			return fmt.Errorf("delete notification: %w", err)
		}
		if removed == 0 {
			break
		}
		return nil
	}
	return ErrNotFound
}

// Clear drops every notification of owner.
func (i *RedisInbox) Clear(ctx context.Context, owner string) error {
	if err := i.client.Del(ctx, inboxKey(owner)).Err(); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}
	return nil
}

// MemoryInbox is the in-process Inbox used without Redis.
type MemoryInbox struct {
	mu    sync.Mutex
	items map[string][]Stored
}

// NewMemoryInbox builds an empty in-memory inbox.
func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{items: make(map[string][]Stored)}
}

func (i *MemoryInbox) Send(_ context.Context, message Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	list := append([]Stored{stamp(message)}, i.items[message.Destination]...)
	if len(list) > InboxCapacity {
		list = list[:InboxCapacity]
	}
	i.items[message.Destination] = list
	return nil
}

func (i *MemoryInbox) List(_ context.Context, owner string) ([]Stored, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Stored, len(i.items[owner]))
	copy(out, i.items[owner])
	return out, nil
}

func (i *MemoryInbox) Delete(_ context.Context, owner, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	list := i.items[owner]
	for idx, s := range list {
		if s.ID == id {
			i.items[owner] = append(list[:idx:idx], list[idx+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (i *MemoryInbox) Clear(_ context.Context, owner string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.items, owner)
	return nil
}
