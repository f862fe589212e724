package badger

import (
	"context"
	"testing"
	"time"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(common.GetLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKVStorage_SetGet(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "url:abc123", "1", 24*time.Hour); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}

	val, err := kv.Get(ctx, "url:abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != "1" {
		t.Errorf("Expected value '1', got %q", val)
	}

	// Keys are case-insensitive
	if _, err := kv.Get(ctx, "URL:ABC123"); err != nil {
		t.Errorf("Expected case-insensitive lookup to succeed, got %v", err)
	}
}

func TestKVStorage_GetMissing(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())

	_, err := kv.Get(context.Background(), "url:missing")
	if err != interfaces.ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestKVStorage_TTLExpiry(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	if err := kv.SetWithTTL(ctx, "content:short", "1", 50*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	_, err := kv.Get(ctx, "content:short")
	if err != interfaces.ErrKeyNotFound {
		t.Errorf("Expected expired key to be missing, got %v", err)
	}
}

func TestKVStorage_Bytes(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	blob := []byte{0x01, 0x02, 0xFF, 0x00, 0x7F}
	if err := kv.SetBytes(ctx, "url_bloom_filter", blob); err != nil {
		t.Fatalf("SetBytes failed: %v", err)
	}

	got, err := kv.GetBytes(ctx, "url_bloom_filter")
	if err != nil {
		t.Fatalf("GetBytes failed: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Blob round-trip mismatch: %v vs %v", got, blob)
	}
}

func TestKVStorage_SortedSet(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	key := "titles:reliance:2026-08-24"
	base := float64(time.Now().Unix())
	members := []string{"first title|cluster_a", "second title|cluster_b", "third title|cluster_c"}
	for i, m := range members {
		if err := kv.SortedAdd(ctx, key, m, base+float64(i), 24*time.Hour); err != nil {
			t.Fatalf("SortedAdd failed: %v", err)
		}
	}

	recent, err := kv.SortedRecent(ctx, key, 2)
	if err != nil {
		t.Fatalf("SortedRecent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(recent))
	}
	// Highest score first
	if recent[0] != "third title|cluster_c" {
		t.Errorf("Expected most recent member first, got %q", recent[0])
	}
}

func TestKVStorage_SortedRecentMissingKey(t *testing.T) {
	kv := NewKVStorage(newTestDB(t), common.GetLogger())

	recent, err := kv.SortedRecent(context.Background(), "titles:none:2026-01-01", 200)
	if err != nil {
		t.Fatalf("SortedRecent on missing key failed: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("Expected empty result, got %v", recent)
	}
}
