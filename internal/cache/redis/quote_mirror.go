package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calebward/chainarb/internal/domain"
)

// QuoteMirror implements domain.QuoteMirror using Redis hashes. Each key's
// freshest quote is stored at "quote:{network}:{venue}:{pair}" with fields
// price, liquidity, block, and ts (Unix nanoseconds), so dashboards can read
// live prices without touching the process.
type QuoteMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteMirror creates a QuoteMirror. A positive ttl lets entries for
// abandoned keys expire on their own.
func NewQuoteMirror(c *Client, ttl time.Duration) *QuoteMirror {
	return &QuoteMirror{rdb: c.Underlying(), ttl: ttl}
}

func mirrorKey(network, venue, pair string) string {
	return "quote:" + network + ":" + venue + ":" + pair
}

// SetQuote stores the freshest quote for its key.
func (m *QuoteMirror) SetQuote(ctx context.Context, q domain.Quote) error {
	key := mirrorKey(q.Network, q.Venue, q.Pair)
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(q.Price, 'f', -1, 64),
		"liquidity": strconv.FormatFloat(q.Liquidity, 'f', -1, 64),
		"block":     strconv.FormatUint(q.BlockNumber, 10),
		"ts":        strconv.FormatInt(q.ObservedAt.UnixNano(), 10),
	}
	if err := m.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: mirror quote %s: %w", key, err)
	}
	if m.ttl > 0 {
		if err := m.rdb.Expire(ctx, key, m.ttl).Err(); err != nil {
			return fmt.Errorf("redis: mirror expire %s: %w", key, err)
		}
	}
	return nil
}

// GetQuote reads the mirrored quote for a key. It returns domain.ErrNotFound
// when the key does not exist.
func (m *QuoteMirror) GetQuote(ctx context.Context, network, venue, pair string) (domain.Quote, error) {
	key := mirrorKey(network, venue, pair)
	vals, err := m.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}
	liquidity, err := strconv.ParseFloat(vals["liquidity"], 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse liquidity %s: %w", key, err)
	}
	block, err := strconv.ParseUint(vals["block"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse block %s: %w", key, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}

	return domain.Quote{
		Network:     network,
		Venue:       venue,
		Pair:        pair,
		Price:       price,
		Liquidity:   liquidity,
		BlockNumber: block,
		ObservedAt:  time.Unix(0, tsNano),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteMirror = (*QuoteMirror)(nil)
