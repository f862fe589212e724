package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finpulse/finpulse/internal/interfaces"
	"github.com/finpulse/finpulse/internal/models"
)

// ClusterStorage implements interfaces.ClusterStorage over badgerhold.
type ClusterStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewClusterStorage creates a new ClusterStorage instance
func NewClusterStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ClusterStorage {
	return &ClusterStorage{
		db:     db,
		logger: logger,
	}
}

// Get loads a story cluster by id.
func (s *ClusterStorage) Get(ctx context.Context, clusterID string) (*models.StoryCluster, error) {
	var cluster models.StoryCluster
	err := s.db.Store().Get(clusterID, &cluster)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrClusterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return &cluster, nil
}

// Upsert writes a cluster document. FirstSeen is preserved on update.
func (s *ClusterStorage) Upsert(ctx context.Context, cluster *models.StoryCluster) error {
	if cluster.ClusterID == "" {
		return fmt.Errorf("cluster missing cluster_id")
	}

	var existing models.StoryCluster
	err := s.db.Store().Get(cluster.ClusterID, &existing)
	if err == nil && !existing.FirstSeen.IsZero() {
		cluster.FirstSeen = existing.FirstSeen
	} else if cluster.FirstSeen.IsZero() {
		cluster.FirstSeen = time.Now().UTC()
	}
	cluster.LastUpdated = time.Now().UTC()

	if err := s.db.Store().Upsert(cluster.ClusterID, cluster); err != nil {
		return fmt.Errorf("failed to upsert cluster: %w", err)
	}
	return nil
}

// AppendPublisher adds a publisher copy to an existing cluster: the
// publishers list always grows by one, sources and urls are added as sets,
// and article_count increments by exactly one.
func (s *ClusterStorage) AppendPublisher(ctx context.Context, clusterID string, pub models.PublisherRef, source, url string) error {
	var cluster models.StoryCluster
	err := s.db.Store().Get(clusterID, &cluster)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrClusterNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load cluster: %w", err)
	}

	cluster.Publishers = append(cluster.Publishers, pub)
	cluster.Sources = appendUnique(cluster.Sources, source)
	cluster.URLs = appendUnique(cluster.URLs, url)
	cluster.ArticleCount++
	cluster.LastUpdated = time.Now().UTC()

	if err := s.db.Store().Upsert(clusterID, &cluster); err != nil {
		return fmt.Errorf("failed to append publisher: %w", err)
	}

	s.logger.Debug().
		Str("cluster_id", clusterID).
		Str("publisher", pub.Name).
		Int("article_count", cluster.ArticleCount).
		Msg("Appended publisher to cluster")
	return nil
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
