package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client for testing
// Requires Redis running on localhost:6379
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		client  redis.UniversalClient
		config  Config
		wantErr bool
	}{
		{
			name:    "nil client",
			client:  nil,
			config:  DefaultConfig(),
			wantErr: true,
		},
		{
			name:    "valid client with default config",
			client:  redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name:    "valid client with custom prefix",
			client:  redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
			config:  Config{KeyPrefix: "test:"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.client, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	type record struct {
		DistinctID string  `json:"distinct_id"`
		Amount     float64 `json:"amount"`
	}

	in := record{DistinctID: "user_1", Amount: 19.99}
	if err := store.Set(ctx, "customer_cus_1", in); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out record
	found, err := store.Get(ctx, "customer_cus_1", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to exist")
	}
	if out != in {
		t.Errorf("round-trip mismatch: got %+v, want %+v", out, in)
	}

	// Keys are prefixed so multiple instances can share one database.
	if err := client.Get(ctx, "stripesync:customer_cus_1").Err(); err != nil {
		t.Errorf("expected prefixed key in redis: %v", err)
	}
}

func TestStore_MissingKey(t *testing.T) {
	client := setupTestRedis(t)
	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var out string
	found, err := store.Get(context.Background(), "nope", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("missing key reported as found")
	}
}

func TestCache_TTL(t *testing.T) {
	client := setupTestRedis(t)
	cache, err := NewCache(client, Config{})
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	ctx := context.Background()

	if err := cache.Set(ctx, "invoice_alert_cus_1", "in_1", 50*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := cache.Get(ctx, "invoice_alert_cus_1")
	if err != nil || !found || value != "in_1" {
		t.Fatalf("Get before expiry: value=%q found=%t err=%v", value, found, err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, found, _ := cache.Get(ctx, "invoice_alert_cus_1"); found {
		t.Error("expired entry reported as found")
	}
}

func TestCache_NoTTL(t *testing.T) {
	client := setupTestRedis(t)
	cache, err := NewCache(client, Config{})
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	ctx := context.Background()

	if err := cache.Set(ctx, "customers_created_gt", "1632758393", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := cache.Get(ctx, "customers_created_gt")
	if err != nil || !found || value != "1632758393" {
		t.Fatalf("zero-TTL entry must persist: value=%q found=%t err=%v", value, found, err)
	}
}
