// Package postgres provides PostgreSQL implementations of the
// stripesync.Store and stripesync.Cache interfaces. Durable values live in
// a single JSONB key-value table with upsert semantics; cache entries carry
// an expiry column checked on read.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Namespace scopes keys per engine instance (default: "default")
	Namespace string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Namespace:       "default",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// Storage implements stripesync.Store and, through its Cache method,
// stripesync.Cache on top of one connection pool.
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// New creates a new PostgreSQL storage adapter and verifies connectivity.
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// NewWithPool creates a storage adapter on an existing pool. The caller
// retains ownership of the pool.
func NewWithPool(pool *pgxpool.Pool, config Config) (*Storage, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	return &Storage{pool: pool, config: config}, nil
}

// EnsureSchema creates the storage tables if they do not exist.
func (s *Storage) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS stripesync_kv (
			namespace  TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			value      JSONB       NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, key)
		);
		CREATE TABLE IF NOT EXISTS stripesync_cache (
			namespace  TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			value      TEXT        NOT NULL,
			expires_at TIMESTAMPTZ,
			PRIMARY KEY (namespace, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// Get implements stripesync.Store
func (s *Storage) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM stripesync_kv WHERE namespace = $1 AND key = $2`,
		s.config.Namespace, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set implements stripesync.Store
func (s *Storage) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO stripesync_kv (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, s.config.Namespace, key, raw)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}

// Cache returns the stripesync.Cache view of this storage.
func (s *Storage) Cache() *Cache {
	return &Cache{storage: s}
}

// Cache implements stripesync.Cache on the stripesync_cache table.
type Cache struct {
	storage *Storage
}

// Get implements stripesync.Cache
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	s := c.storage
	var value string
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM stripesync_cache
		WHERE namespace = $1 AND key = $2
		  AND (expires_at IS NULL OR expires_at > now())
	`, s.config.Namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements stripesync.Cache
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s := c.storage
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().UTC().Add(ttl)
		expiresAt = &t
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO stripesync_cache (namespace, key, value, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, s.config.Namespace, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", key, err)
	}
	return nil
}
