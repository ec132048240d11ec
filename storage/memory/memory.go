// Package memory provides in-memory implementations of the
// stripesync.Store and stripesync.Cache interfaces.
// These implementations are primarily intended for testing and development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store implements stripesync.Store using an in-memory map. Values are
// kept JSON-encoded so Get/Set round-trips behave exactly like a real
// backend.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Get implements stripesync.Store
func (s *Store) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set implements stripesync.Store
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored keys. Intended for tests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache implements stripesync.Cache using an in-memory map with lazy
// expiration.
type Cache struct {
	mu   sync.RWMutex
	data map[string]cacheEntry

	// now overrides the clock, for tests.
	now func() time.Time
}

// NewCache creates a new in-memory TTL cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get implements stripesync.Cache
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.data, key)
		c.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set implements stripesync.Cache
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}
