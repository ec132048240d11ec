// Package redis provides Redis implementations of the stripesync.Store and
// stripesync.Cache interfaces. Values are stored as JSON strings under a
// configurable key prefix, which also scopes multiple engine instances
// sharing one Redis database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "stripesync:")
	KeyPrefix string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "stripesync:",
	}
}

// Store implements stripesync.Store using Redis. Durable keys carry no TTL.
type Store struct {
	client redis.UniversalClient
	config Config
}

// New creates a new Redis store adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripesync:"
	}
	return &Store{client: client, config: config}, nil
}

// Get implements stripesync.Store
func (s *Store) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := s.client.Get(ctx, s.config.KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set implements stripesync.Store
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.config.KeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Cache implements stripesync.Cache using Redis with native key expiration.
type Cache struct {
	client redis.UniversalClient
	config Config
}

// NewCache creates a new Redis cache adapter.
func NewCache(client redis.UniversalClient, config Config) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripesync:cache:"
	}
	return &Cache{client: client, config: config}, nil
}

// Get implements stripesync.Cache
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.client.Get(ctx, c.config.KeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, true, nil
}

// Set implements stripesync.Cache
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.config.KeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
