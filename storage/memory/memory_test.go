package memory

import (
	"context"
	"testing"
	"time"
)

type testRecord struct {
	DistinctID string  `json:"distinct_id"`
	Amount     float64 `json:"amount"`
}

func TestStore_RoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	in := testRecord{DistinctID: "user_1", Amount: 19.99}
	if err := store.Set(ctx, "customer_cus_1", in); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out testRecord
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
	if store.Len() != 1 {
		t.Errorf("Len mismatch: got %d", store.Len())
	}
}

func TestStore_MissingKey(t *testing.T) {
	store := New()

	var out testRecord
	found, err := store.Get(context.Background(), "nope", &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("missing key reported as found")
	}
}

func TestStore_EmptyKey(t *testing.T) {
	if err := New().Set(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestCache_TTL(t *testing.T) {
	now := time.Date(2022, time.July, 8, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "invoice_alert_cus_1", "in_1", time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, found, err := cache.Get(ctx, "invoice_alert_cus_1")
	if err != nil || !found || value != "in_1" {
		t.Fatalf("Get before expiry: value=%q found=%t err=%v", value, found, err)
	}

	now = now.Add(time.Hour)
	if _, found, _ := cache.Get(ctx, "invoice_alert_cus_1"); found {
		t.Error("expired entry reported as found")
	}
}

func TestCache_NoTTL(t *testing.T) {
	now := time.Date(2022, time.July, 8, 12, 0, 0, 0, time.UTC)
	cache := NewCache()
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	if err := cache.Set(ctx, "customers_created_gt", "1632758393", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	now = now.Add(24 * 365 * time.Hour)
	value, found, err := cache.Get(ctx, "customers_created_gt")
	if err != nil || !found || value != "1632758393" {
		t.Fatalf("zero-TTL entry must not expire: value=%q found=%t err=%v", value, found, err)
	}
}
