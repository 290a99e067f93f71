// Package session keeps per-user conversation history so follow-up
// requests carry context. Sessions live in process memory only; a
// restart starts everyone fresh.
package session

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tmc/langchaingo/llms"
)

// Store holds one conversation per user, last-write-wins.
type Store interface {
	// Get returns the stored turns for a user, if any.
	Get(userID string) ([]llms.MessageContent, bool)
	// Replace stores the turns for a user, replacing any prior session.
	Replace(userID string, turns []llms.MessageContent)
	// Clear drops the user's session.
	Clear(userID string)
}

// LRUStore is a bounded, TTL-evicting Store. Bounding is deliberate:
// the map grows with distinct user ids and nothing else ever removes
// entries.
type LRUStore struct {
	cache *expirable.LRU[string, []llms.MessageContent]
}

// NewLRUStore creates a store holding up to capacity sessions, each
// expiring ttl after its last write. capacity <= 0 means unbounded and
// ttl <= 0 means no expiry.
func NewLRUStore(capacity int, ttl time.Duration) *LRUStore {
	return &LRUStore{
		cache: expirable.NewLRU[string, []llms.MessageContent](capacity, nil, ttl),
	}
}

func (s *LRUStore) Get(userID string) ([]llms.MessageContent, bool) {
	return s.cache.Get(userID)
}

func (s *LRUStore) Replace(userID string, turns []llms.MessageContent) {
	s.cache.Add(userID, turns)
}

func (s *LRUStore) Clear(userID string) {
	s.cache.Remove(userID)
}
