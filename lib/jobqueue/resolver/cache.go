package resolver

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ttlCache is a thin wrapper around an expirable LRU holding exactly the
// "mapping" and "priority" entries a transformer refreshes on its own
// schedule. Wrapping it (instead of using the LRU directly) keeps the
// zero-refresh ("always refetch") case a single nil check.
type ttlCache struct {
	lru *lru.LRU[string, any]
}

// newTTLCache builds a cache that refreshes every refreshEveryMs
// milliseconds. refreshEveryMs <= 0 disables caching: every get misses, so
// the owning transformer refetches on every Transform call.
func newTTLCache(refreshEveryMs int64) *ttlCache {
	if refreshEveryMs <= 0 {
		return &ttlCache{}
	}
	return &ttlCache{lru: lru.NewLRU[string, any](8, nil, time.Duration(refreshEveryMs)*time.Millisecond)}
}

func (c *ttlCache) get(key string) (any, bool) {
	if c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *ttlCache) set(key string, value any) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, value)
}
