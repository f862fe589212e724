package interfaces

import "errors"

// Sentinel errors shared across storage and service layers.
var (
	ErrKeyNotFound       = errors.New("key not found")
	ErrArticleNotFound   = errors.New("article not found")
	ErrClusterNotFound   = errors.New("cluster not found")
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrHoldingNotFound   = errors.New("holding not found")

	ErrInsufficientFunds  = errors.New("insufficient cash for purchase")
	ErrInsufficientShares = errors.New("insufficient shares to sell")

	ErrTopicClosed     = errors.New("topic is closed")
	ErrBrokerClosed    = errors.New("broker is closed")
	ErrNoLLMProvider   = errors.New("no LLM provider configured")
	ErrEmptyLLMReply   = errors.New("empty LLM response")
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)
