package domain

import (
	"fmt"
	"time"
)

// Quote is one price/liquidity observation for a pair on a venue. Quotes are
// value objects: the price cache copies them out to callers and nothing
// mutates a quote after it is created.
type Quote struct {
	Network     string    `json:"network"`
	Venue       string    `json:"venue"`
	Pair        string    `json:"pair"`
	Price       float64   `json:"price"`     // quote units per base unit
	Liquidity   float64   `json:"liquidity"` // base units available in the pool
	BlockNumber uint64    `json:"block_number"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Key returns the cache key for this quote's (network, venue, pair) slot.
func (q Quote) Key() string {
	return q.Network + ":" + q.Venue + ":" + q.Pair
}

// Fresh reports whether the quote is still inside the staleness window at
// the given instant.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.ObservedAt) < maxAge
}

// Validate rejects implausible observations before they can enter the cache.
func (q Quote) Validate() error {
	if q.Price <= 0 {
		return fmt.Errorf("%w: non-positive price %v for %s", ErrInvalidQuote, q.Price, q.Key())
	}
	if q.Liquidity < 0 {
		return fmt.Errorf("%w: negative liquidity %v for %s", ErrInvalidQuote, q.Liquidity, q.Key())
	}
	if q.ObservedAt.IsZero() {
		return fmt.Errorf("%w: missing observation time for %s", ErrInvalidQuote, q.Key())
	}
	return nil
}
