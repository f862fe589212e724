package broker

import "time"

// TopicRecord is one durable message in a topic log. The sequence-assigned
// ID provides FIFO order within a topic.
type TopicRecord struct {
	ID        uint64    `badgerhold:"key"`
	Topic     string    `badgerhold:"index"`
	Key       string    // partition key, a ticker
	Value     []byte    // JSON payload
	Timestamp time.Time
}

// GroupOffset tracks a consumer group's position in a topic. Advanced only
// after the handler returns nil, so delivery is at-least-once.
type GroupOffset struct {
	GroupKey string `badgerhold:"key"` // "topic|group"
	Offset   uint64 // highest record ID successfully handled
}
