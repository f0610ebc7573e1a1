package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"outreach-platform/pkg/utils"
)

// Locker serializes dispatch runs per group: two operators clicking "call
// group" at once must not double-dial the same members.
type Locker interface {
	Acquire(ctx context.Context, groupID string) (bool, error)
	Release(ctx context.Context, groupID string) error
}

// RedisLocker backs the per-group dispatch slot with an atomic Redis counter.
// The TTL releases slots leaked by a crashed process.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: 15 * time.Minute}
}

func lockKey(groupID string) string { return "dispatch:lock:" + groupID }

func (l *RedisLocker) Acquire(ctx context.Context, groupID string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, lockKey(groupID), 1, l.ttl)
}

func (l *RedisLocker) Release(ctx context.Context, groupID string) error {
	return utils.ReleaseSlot(ctx, l.rdb, lockKey(groupID))
}

// MemoryLocker is the single-process Locker used by tests and local dev.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, groupID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[groupID] {
		return false, nil
	}
	l.held[groupID] = true
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, groupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, groupID)
	return nil
}
