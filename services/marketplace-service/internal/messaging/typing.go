package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TypingTracker remembers who is typing in a conversation. Entries expire
// so a lost clear step cannot leave an indicator on forever.
type TypingTracker interface {
	SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error
	ClearTyping(ctx context.Context, conversationID string) error
	Typing(ctx context.Context, conversationID string) (string, error)
}

type MemoryTyping struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]typingEntry
}

type typingEntry struct {
	userID  string
	expires time.Time
}

func NewMemoryTyping() *MemoryTyping {
	return &MemoryTyping{now: time.Now, entries: map[string]typingEntry{}}
}

func (t *MemoryTyping) SetTyping(_ context.Context, conversationID, userID string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[conversationID] = typingEntry{userID: userID, expires: t.now().Add(ttl)}
	return nil
}

func (t *MemoryTyping) ClearTyping(_ context.Context, conversationID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, conversationID)
	return nil
}

func (t *MemoryTyping) Typing(_ context.Context, conversationID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[conversationID]
	if !ok {
		return "", nil
	}
	if t.now().After(e.expires) {
		delete(t.entries, conversationID)
		return "", nil
	}
	return e.userID, nil
}

// RedisTyping shares typing state between instances.
type RedisTyping struct {
	rdb redis.UniversalClient
}

func NewRedisTyping(rdb redis.UniversalClient) *RedisTyping {
	return &RedisTyping{rdb: rdb}
}

func typingKey(conversationID string) string { return "typing:" + conversationID }

func (t *RedisTyping) SetTyping(ctx context.Context, conversationID, userID string, ttl time.Duration) error {
	return t.rdb.Set(ctx, typingKey(conversationID), userID, ttl).Err()
}

func (t *RedisTyping) ClearTyping(ctx context.Context, conversationID string) error {
	return t.rdb.Del(ctx, typingKey(conversationID)).Err()
}

func (t *RedisTyping) Typing(ctx context.Context, conversationID string) (string, error) {
	v, err := t.rdb.Get(ctx, typingKey(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}
