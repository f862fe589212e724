package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/finpulse/finpulse/internal/interfaces"
)

// Raw key prefixes keep the KV namespace clear of badgerhold's typed keys.
const (
	kvPrefix   = "kv:"
	zsetPrefix = "zset:"
)

// KVStorage implements interfaces.KeyValueStorage on raw Badger entries so
// TTLs are enforced natively by the store.
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) interfaces.KeyValueStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get retrieves a value by key (case-insensitive). Expired entries surface
// as ErrKeyNotFound.
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	rawKey := []byte(kvPrefix + normalizeKey(key))
	var value string

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(rawKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}

	return value, nil
}

// SetWithTTL stores key=value, expiring after ttl. A ttl <= 0 stores the
// entry without expiry.
func (s *KVStorage) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	rawKey := []byte(kvPrefix + normalizeKey(key))

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(rawKey, []byte(value))
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// GetBytes retrieves a binary blob by key.
func (s *KVStorage) GetBytes(ctx context.Context, key string) ([]byte, error) {
	rawKey := []byte(kvPrefix + normalizeKey(key))
	var value []byte

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(rawKey)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bytes: %w", err)
	}

	return value, nil
}

// SetBytes stores a binary blob without expiry.
func (s *KVStorage) SetBytes(ctx context.Context, key string, value []byte) error {
	rawKey := []byte(kvPrefix + normalizeKey(key))

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(rawKey, value)
	})
	if err != nil {
		return fmt.Errorf("failed to set bytes: %w", err)
	}
	return nil
}

// Delete removes a key (case-insensitive)
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	rawKey := []byte(kvPrefix + normalizeKey(key))

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(rawKey)
	})
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// SortedAdd inserts member with score into the sorted set at key. The whole
// set shares one TTL, refreshed on every add.
func (s *KVStorage) SortedAdd(ctx context.Context, key, member string, score float64, ttl time.Duration) error {
	rawKey := []byte(zsetPrefix + normalizeKey(key))

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		members := make(map[string]float64)

		item, err := txn.Get(rawKey)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &members)
			})
			if err != nil {
				s.logger.Warn().Str("key", key).Err(err).Msg("Discarding unreadable sorted set")
				members = make(map[string]float64)
			}
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}

		members[member] = score

		data, err := json.Marshal(members)
		if err != nil {
			return err
		}

		entry := badgerdb.NewEntry(rawKey, data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to add to sorted set: %w", err)
	}
	return nil
}

// SortedRecent returns up to limit members ordered by descending score.
func (s *KVStorage) SortedRecent(ctx context.Context, key string, limit int) ([]string, error) {
	rawKey := []byte(zsetPrefix + normalizeKey(key))
	members := make(map[string]float64)

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(rawKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &members)
		})
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sorted set: %w", err)
	}

	type scored struct {
		member string
		score  float64
	}
	entries := make([]scored, 0, len(members))
	for m, sc := range members {
		entries = append(entries, scored{m, sc})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].score > entries[j].score
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.member
	}
	return out, nil
}
