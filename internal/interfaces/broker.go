package interfaces

import (
	"context"
	"time"
)

// Topic names on the message broker.
const (
	TopicRawArticles    = "raw_articles"
	TopicTradeSignals   = "trade_signals"
	TopicSummarizedNews = "summarized_news"
	TopicStockAnalysis  = "stock_analysis"
)

// BrokerMessage is one keyed record on a topic. Keys are tickers. Ordering
// is FIFO within a topic; cross-topic ordering is not guaranteed.
type BrokerMessage struct {
	Topic     string    `json:"topic"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	Offset    uint64    `json:"offset"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageHandler processes one delivered message. Returning an error leaves
// the group offset unadvanced so the message is redelivered (at-least-once).
type MessageHandler func(ctx context.Context, msg BrokerMessage) error

// Producer publishes JSON-encoded messages to topics.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
	// Flush blocks until buffered messages are durably written.
	Flush(ctx context.Context) error
}

// MessageBroker is the topic bus: producer plus consumer-group
// subscriptions with durable per-group offsets.
type MessageBroker interface {
	Producer
	Subscribe(topic, group string, handler MessageHandler) error
	Unsubscribe(topic, group string) error
	Close() error
}
