// Package broker implements the topic bus: a badger-persisted message log
// with producer and consumer-group semantics. Messages are JSON, keyed by
// ticker, FIFO within a topic, delivered at-least-once per group.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/finpulse/finpulse/internal/common"
	"github.com/finpulse/finpulse/internal/interfaces"
	storage "github.com/finpulse/finpulse/internal/storage/badger"
)

type subscription struct {
	topic   string
	group   string
	handler interfaces.MessageHandler
	cancel  context.CancelFunc
	done    chan struct{}
}

// Broker is the in-process topic bus backed by the shared badger store.
type Broker struct {
	db           *storage.BadgerDB
	logger       arbor.ILogger
	pollInterval time.Duration

	mu     sync.Mutex
	subs   map[string]*subscription // "topic|group"
	wake   map[string][]chan struct{}
	closed bool
}

// NewBroker creates the topic bus over an open database connection.
func NewBroker(db *storage.BadgerDB, config *common.BrokerConfig, logger arbor.ILogger) *Broker {
	return &Broker{
		db:           db,
		logger:       logger,
		pollInterval: common.DurationOr(config.PollInterval, 250*time.Millisecond),
		subs:         make(map[string]*subscription),
		wake:         make(map[string][]chan struct{}),
	}
}

// Publish appends a JSON-encoded message to a topic log and wakes
// subscribers. The write is durable before Publish returns.
func (b *Broker) Publish(ctx context.Context, topic, key string, value any) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return interfaces.ErrBrokerClosed
	}
	b.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode message for %s: %w", topic, err)
	}

	record := &TopicRecord{
		Topic:     topic,
		Key:       key,
		Value:     data,
		Timestamp: time.Now().UTC(),
	}
	if err := b.db.Store().Insert(badgerhold.NextSequence(), record); err != nil {
		return fmt.Errorf("failed to append to topic %s: %w", topic, err)
	}

	b.notify(topic)

	b.logger.Debug().
		Str("topic", topic).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Published message")
	return nil
}

// Flush is a no-op: publishes are synchronous and durable.
func (b *Broker) Flush(ctx context.Context) error {
	return nil
}

// Subscribe registers a handler for a (topic, group) pair and starts its
// delivery loop. Each group resumes from its durable offset.
func (b *Broker) Subscribe(topic, group string, handler interfaces.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return interfaces.ErrBrokerClosed
	}

	groupKey := topic + "|" + group
	if _, exists := b.subs[groupKey]; exists {
		return fmt.Errorf("group %s already subscribed to %s", group, topic)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		topic:   topic,
		group:   group,
		handler: handler,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	b.subs[groupKey] = sub

	wakeCh := make(chan struct{}, 1)
	b.wake[topic] = append(b.wake[topic], wakeCh)

	go b.deliverLoop(ctx, sub, groupKey, wakeCh)

	b.logger.Info().Str("topic", topic).Str("group", group).Msg("Consumer group subscribed")
	return nil
}

// Unsubscribe stops a group's delivery loop. Its offset remains durable so
// a later subscribe resumes where it left off.
func (b *Broker) Unsubscribe(topic, group string) error {
	b.mu.Lock()
	groupKey := topic + "|" + group
	sub, ok := b.subs[groupKey]
	if ok {
		delete(b.subs, groupKey)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no subscription for %s group %s", topic, group)
	}

	sub.cancel()
	<-sub.done
	return nil
}

// Close stops all delivery loops and rejects further publishes.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}

	b.logger.Debug().Msg("Broker closed")
	return nil
}

func (b *Broker) notify(topic string) {
	b.mu.Lock()
	channels := b.wake[topic]
	b.mu.Unlock()

	for _, ch := range channels {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// deliverLoop drains the topic log for one group: fetch records past the
// offset, invoke the handler in order, advance the offset after each
// success. Handler errors stall the group on that record.
func (b *Broker) deliverLoop(ctx context.Context, sub *subscription, groupKey string, wakeCh chan struct{}) {
	defer close(sub.done)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		b.drain(ctx, sub, groupKey)

		select {
		case <-ctx.Done():
			return
		case <-wakeCh:
		case <-ticker.C:
		}
	}
}

func (b *Broker) drain(ctx context.Context, sub *subscription, groupKey string) {
	offset, err := b.loadOffset(groupKey)
	if err != nil {
		b.logger.Warn().Str("group", groupKey).Err(err).Msg("Failed to load group offset")
		return
	}

	var records []TopicRecord
	q := badgerhold.Where("Topic").Eq(sub.topic).Index("Topic").SortBy("ID")
	if err := b.db.Store().Find(&records, q); err != nil {
		b.logger.Warn().Str("topic", sub.topic).Err(err).Msg("Failed to read topic log")
		return
	}

	for _, record := range records {
		if record.ID <= offset {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		msg := interfaces.BrokerMessage{
			Topic:     record.Topic,
			Key:       record.Key,
			Value:     record.Value,
			Offset:    record.ID,
			Timestamp: record.Timestamp,
		}
		if err := sub.handler(ctx, msg); err != nil {
			b.logger.Warn().
				Str("topic", sub.topic).
				Str("group", sub.group).
				Int64("offset", int64(record.ID)).
				Err(err).
				Msg("Handler failed, message will be redelivered")
			return
		}

		if err := b.saveOffset(groupKey, record.ID); err != nil {
			b.logger.Error().Str("group", groupKey).Err(err).Msg("Failed to advance group offset")
			return
		}
	}
}

func (b *Broker) loadOffset(groupKey string) (uint64, error) {
	var off GroupOffset
	err := b.db.Store().Get(groupKey, &off)
	if err == badgerhold.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return off.Offset, nil
}

func (b *Broker) saveOffset(groupKey string, offset uint64) error {
	return b.db.Store().Upsert(groupKey, &GroupOffset{GroupKey: groupKey, Offset: offset})
}
