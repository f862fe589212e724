package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
)

// Manager aggregates all Badger-backed storages behind one connection.
type Manager struct {
	db         *BadgerDB
	kv         interfaces.KeyValueStorage
	articles   interfaces.ArticleStorage
	clusters   interfaces.ClusterStorage
	summaries  interfaces.SummaryStorage
	signals    interfaces.SignalStorage
	portfolios interfaces.PortfolioStorage
	logger     arbor.ILogger
}

// NewManager opens the database and wires all typed storages.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return NewManagerFromDB(db, logger), nil
}

// NewManagerFromDB wires the typed storages over an already-open
// connection, so callers that need the raw handle elsewhere share one
// badger instance.
func NewManagerFromDB(db *BadgerDB, logger arbor.ILogger) interfaces.StorageManager {
	return &Manager{
		db:         db,
		kv:         NewKVStorage(db, logger),
		articles:   NewArticleStorage(db, logger),
		clusters:   NewClusterStorage(db, logger),
		summaries:  NewSummaryStorage(db, logger),
		signals:    NewSignalStorage(db, logger),
		portfolios: NewPortfolioStorage(db, logger),
		logger:     logger,
	}
}

func (m *Manager) KV() interfaces.KeyValueStorage            { return m.kv }
func (m *Manager) Articles() interfaces.ArticleStorage       { return m.articles }
func (m *Manager) Clusters() interfaces.ClusterStorage       { return m.clusters }
func (m *Manager) Summaries() interfaces.SummaryStorage      { return m.summaries }
func (m *Manager) Signals() interfaces.SignalStorage         { return m.signals }
func (m *Manager) Portfolios() interfaces.PortfolioStorage   { return m.portfolios }

// Close closes the underlying database connection.
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing storage manager")
	return m.db.Close()
}
