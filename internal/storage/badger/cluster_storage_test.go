package badger

import (
	"context"
	"testing"
	"time"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

func TestClusterStorage_AppendPublisher(t *testing.T) {
	store := NewClusterStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	cluster := &models.StoryCluster{
		ClusterID:    "cluster_reliance_economic_2026-08-24_ab12cd34",
		Title:        "reliance profit jumps 12 percent in q2",
		Company:      "reliance",
		FactorType:   "economic",
		Sources:      []string{"moneycontrol"},
		URLs:         []string{"https://example.com/a"},
		Publishers:   []models.PublisherRef{{Name: "Moneycontrol", URL: "https://example.com/a"}},
		ArticleCount: 1,
		PublishedAt:  time.Now().UTC(),
	}
	if err := store.Upsert(ctx, cluster); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	pub := models.PublisherRef{Name: "Economic Times", URL: "https://example.com/b"}
	if err := store.AppendPublisher(ctx, cluster.ClusterID, pub, "economictimes", "https://example.com/b"); err != nil {
		t.Fatalf("AppendPublisher failed: %v", err)
	}

	got, err := store.Get(ctx, cluster.ClusterID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	// Each appended article grows count and publishers by exactly one
	if got.ArticleCount != 2 {
		t.Errorf("Expected article_count 2, got %d", got.ArticleCount)
	}
	if len(got.Publishers) != 2 {
		t.Errorf("Expected 2 publishers, got %d", len(got.Publishers))
	}
	if len(got.Sources) != 2 || len(got.URLs) != 2 {
		t.Errorf("Expected sources/urls added as sets, got %v / %v", got.Sources, got.URLs)
	}

	// Re-adding the same source/url must not grow the sets
	if err := store.AppendPublisher(ctx, cluster.ClusterID, pub, "economictimes", "https://example.com/b"); err != nil {
		t.Fatalf("AppendPublisher failed: %v", err)
	}
	got, _ = store.Get(ctx, cluster.ClusterID)
	if len(got.Sources) != 2 || len(got.URLs) != 2 {
		t.Errorf("Expected set semantics on sources/urls, got %v / %v", got.Sources, got.URLs)
	}
	if got.ArticleCount != 3 || len(got.Publishers) != 3 {
		t.Errorf("Expected count/publishers to keep growing, got %d / %d", got.ArticleCount, len(got.Publishers))
	}
}

func TestClusterStorage_AppendMissing(t *testing.T) {
	store := NewClusterStorage(newTestDB(t), common.GetLogger())

	err := store.AppendPublisher(context.Background(), "cluster_missing", models.PublisherRef{Name: "X"}, "x", "https://x.com")
	if err != interfaces.ErrClusterNotFound {
		t.Errorf("Expected ErrClusterNotFound, got %v", err)
	}
}

func TestClusterStorage_UpsertPreservesFirstSeen(t *testing.T) {
	store := NewClusterStorage(newTestDB(t), common.GetLogger())
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Hour)
	cluster := &models.StoryCluster{
		ClusterID: "cluster_x",
		Company:   "tcs",
		FirstSeen: first,
	}
	if err := store.Upsert(ctx, cluster); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cluster.FirstSeen = time.Time{}
	if err := store.Upsert(ctx, cluster); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := store.Get(ctx, "cluster_x")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.FirstSeen.Equal(first) {
		t.Errorf("Expected first_seen preserved, got %v", got.FirstSeen)
	}
}
