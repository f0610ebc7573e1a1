package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Monitor preference keys. These mirror what the dashboard historically kept
// in browser storage; here they live server-side, scoped per user.
const (
	KeyLimit        = "callMonitor_limit"
	KeyStatusFilter = "callMonitor_statusFilter"
)

const (
	DefaultPageSize = 10
	DefaultFilter   = "all"
)

// Store persists monitor view preferences across sessions. Reads are
// best-effort: corrupt or missing values silently fall back to defaults and
// never fail the caller.
type Store interface {
	Get(ctx context.Context, userID, key string) (string, error)
	Set(ctx context.Context, userID, key, value string) error
}

var ErrNotFound = errors.New("prefs: not found")

// RedisStore keeps preferences in Redis under monitor:prefs:<user>:<key>.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("prefs: redis client is required")
	}
	// Preferences survive across sessions; a long TTL keeps abandoned
	// accounts from accumulating keys forever.
	return &RedisStore{rdb: rdb, ttl: 180 * 24 * time.Hour}, nil
}

func prefKey(userID, key string) string {
	return fmt.Sprintf("monitor:prefs:%s:%s", userID, key)
}

func (s *RedisStore) Get(ctx context.Context, userID, key string) (string, error) {
	v, err := s.rdb.Get(ctx, prefKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, key, value string) error {
	if err := s.rdb.Set(ctx, prefKey(userID, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// MemoryStore is the in-memory Store used by tests and local development.
// Shared across handler goroutines, so access is mutex-guarded like the
// Redis-backed store's server-side serialization.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, userID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[prefKey(userID, key)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[prefKey(userID, key)] = value
	return nil
}

// PageSize reads the persisted page size, falling back to DefaultPageSize on
// missing, corrupt, or disallowed values.
func PageSize(ctx context.Context, s Store, userID string, allowed func(int) bool) int {
	if s == nil {
		return DefaultPageSize
	}
	raw, err := s.Get(ctx, userID, KeyLimit)
	if err != nil {
		return DefaultPageSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || (allowed != nil && !allowed(n)) {
		return DefaultPageSize
	}
	return n
}

// StatusFilter reads the persisted status filter, falling back to
// DefaultFilter when the stored value is not one of the known filters.
func StatusFilter(ctx context.Context, s Store, userID string) string {
	if s == nil {
		return DefaultFilter
	}
	raw, err := s.Get(ctx, userID, KeyStatusFilter)
	if err != nil {
		return DefaultFilter
	}
	switch raw {
	case "all", "completed", "failed", "initiated":
		return raw
	default:
		return DefaultFilter
	}
}
