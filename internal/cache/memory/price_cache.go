// Package memory holds the in-process price cache: the freshest known quote
// per (network, venue, pair) key.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/calebward/chainarb/internal/domain"
)

// PriceCache stores the most recent quote per key. Writes are last-write-wins
// (each key is written by exactly one poll task per cycle) and quotes are
// copied out by value. Stale entries remain until overwritten but are
// filtered out of AllFresh at read time; there is no count-based eviction.
type PriceCache struct {
	maxAge time.Duration

	mu     sync.Mutex
	quotes map[string]domain.Quote
	now    func() time.Time
}

// NewPriceCache creates a cache with the given staleness window.
func NewPriceCache(maxAge time.Duration) *PriceCache {
	return &PriceCache{
		maxAge: maxAge,
		quotes: make(map[string]domain.Quote),
		now:    time.Now,
	}
}

// Put stores a quote under its key, unconditionally overwriting any previous
// entry.
func (c *PriceCache) Put(q domain.Quote) {
	c.mu.Lock()
	c.quotes[q.Key()] = q
	c.mu.Unlock()
}

// Get returns the cached quote for the key, fresh or not.
func (c *PriceCache) Get(network, venue, pair string) (domain.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[network+":"+venue+":"+pair]
	return q, ok
}

// AllFresh returns every quote still inside the staleness window, in
// deterministic key order.
func (c *PriceCache) AllFresh() []domain.Quote {
	now := c.now()

	c.mu.Lock()
	keys := make([]string, 0, len(c.quotes))
	for k, q := range c.quotes {
		if q.Fresh(now, c.maxAge) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]domain.Quote, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.quotes[k])
	}
	c.mu.Unlock()

	return out
}

// FreshByPair groups the fresh quotes by pair identifier, preserving the
// deterministic ordering of AllFresh within each group.
func (c *PriceCache) FreshByPair() map[string][]domain.Quote {
	out := make(map[string][]domain.Quote)
	for _, q := range c.AllFresh() {
		out[q.Pair] = append(out[q.Pair], q)
	}
	return out
}

// Len returns the number of cached entries, fresh or stale.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.quotes)
}
