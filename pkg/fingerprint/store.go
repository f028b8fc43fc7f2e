package fingerprint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/garagehq/docvision/pkg/cache"
)

// Store is the key-value collaborator behind the cache. Any store with TTL
// support satisfies it. Get reports (value, found, error); an absent key is
// not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// redisStore backs the cache with Redis, behind a circuit breaker so a
// dead Redis fails fast instead of adding a dial timeout to every request.
type redisStore struct {
	rdb     *cache.Client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewRedisStore wraps the shared redis client.
func NewRedisStore(rdb *cache.Client) Store {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "fingerprint-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &redisStore{rdb: rdb, breaker: cb, timeout: 2 * time.Second}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		val, err := s.rdb.Get(opCtx, key)
		if err != nil {
			if cache.IsMiss(err) {
				return nil, nil
			}
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("fingerprint store get: %w", err)
	}
	if out == nil {
		return nil, false, nil
	}
	return out.([]byte), true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return nil, s.rdb.Set(opCtx, key, value, ttl)
	})
	if err != nil {
		return fmt.Errorf("fingerprint store set: %w", err)
	}
	return nil
}

// memEntry is one in-memory value with its expiry.
type memEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is the redis-less backend: a bounded map evicting
// oldest-inserted first. Exact read recency is not tracked, so
// least-recently-inserted is the eviction order.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	order      []string
	maxEntries int
	now        func() time.Time
}

func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &MemoryStore{
		entries:    make(map[string]memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().After(e.expires) {
		// Lazy expiry on read.
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[key]; !exists {
		s.order = append(s.order, key)
	}
	s.entries[key] = memEntry{value: value, expires: s.now().Add(ttl)}
	for len(s.entries) > s.maxEntries && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}
	return nil
}

// Len reports the live entry count.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
