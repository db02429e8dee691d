package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/fapiaolink/internal/clock"
)

func TestMemoryStoreExpiresAfterTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	store := NewMemoryStore(24*time.Hour, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "ORD-abcd1234-1", Entry{TenantID: "tenant-a"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	clk.Advance(23*time.Hour + 59*time.Minute)
	entry, err := store.Get(ctx, "ORD-abcd1234-1")
	if err != nil {
		t.Fatalf("get before expiry: %v", err)
	}
	if entry.TenantID != "tenant-a" {
		t.Fatalf("tenant = %q, want tenant-a", entry.TenantID)
	}

	clk.Advance(2 * time.Minute)
	if _, err := store.Get(ctx, "ORD-abcd1234-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreReadMany(t *testing.T) {
	clk := clock.NewFakeClock(time.Now().UTC())
	store := NewMemoryStore(24*time.Hour, clk)
	ctx := context.Background()

	if err := store.Put(ctx, "MERGE-abcd1234-1-2-3", Entry{TenantID: "tenant-a"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A merge fans out into several callbacks sharing one token.
	for i := 0; i < 3; i++ {
		if _, err := store.Get(ctx, "MERGE-abcd1234-1-2-3"); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	clk := clock.NewFakeClock(time.Now().UTC())
	store := NewMemoryStore(time.Hour, clk)
	ctx := context.Background()

	_ = store.Put(ctx, "ORD-abcd1234-1", Entry{TenantID: "a"})
	clk.Advance(30 * time.Minute)
	_ = store.Put(ctx, "ORD-abcd1234-2", Entry{TenantID: "a"})
	clk.Advance(31 * time.Minute)

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 {
		t.Fatalf("count = %d, want 1", stats.Count)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(start)
	store := NewMemoryStore(24*time.Hour, clk)
	ctx := context.Background()

	_ = store.Put(ctx, "ORD-abcd1234-1", Entry{TenantID: "a"})
	clk.Advance(time.Hour)
	_ = store.Put(ctx, "ORD-abcd1234-2", Entry{TenantID: "a"})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 2 {
		t.Fatalf("count = %d, want 2", stats.Count)
	}
	if stats.Oldest == nil || !stats.Oldest.Equal(start) {
		t.Fatalf("oldest = %v, want %v", stats.Oldest, start)
	}
	if stats.Newest == nil || !stats.Newest.Equal(start.Add(time.Hour)) {
		t.Fatalf("newest = %v, want %v", stats.Newest, start.Add(time.Hour))
	}
}

func TestMemoryStoreMissingToken(t *testing.T) {
	store := NewMemoryStore(24*time.Hour, clock.NewFakeClock(time.Now()))
	if _, err := store.Get(context.Background(), "ORD-ffffffff-9"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
