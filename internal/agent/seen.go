package agent

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SeenCache remembers recently processed stimulus ids. It is bounded by both
// capacity and age; the least recently used id is evicted first.
type SeenCache struct {
	lru *expirable.LRU[string, struct{}]
}

// NewSeenCache creates a cache holding at most size ids for up to ttl each.
// ttl <= 0 keeps ids until they are evicted by capacity.
func NewSeenCache(size int, ttl time.Duration) *SeenCache {
	if size < 1 {
		size = 1
	}
	return &SeenCache{lru: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

// Seen reports whether id was marked and not yet evicted.
func (c *SeenCache) Seen(id string) bool {
	return c.lru.Contains(id)
}

// Mark records id as processed.
func (c *SeenCache) Mark(id string) {
	c.lru.Add(id, struct{}{})
}

// Len is the number of ids currently held.
func (c *SeenCache) Len() int {
	return c.lru.Len()
}
