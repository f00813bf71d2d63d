package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebward/chainarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given
// connection pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, pair,
	buy_network, buy_venue, buy_price, buy_liquidity, buy_block, buy_observed_at,
	sell_network, sell_venue, sell_price, sell_liquidity, sell_block, sell_observed_at,
	price_gap, price_gap_percent, reference_size,
	gross_profit_usd, cost_usd, net_profit_usd, net_margin_percent,
	profitable, detected_at`

// Insert stores one detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, pair,
			buy_network, buy_venue, buy_price, buy_liquidity, buy_block, buy_observed_at,
			sell_network, sell_venue, sell_price, sell_liquidity, sell_block, sell_observed_at,
			price_gap, price_gap_percent, reference_size,
			gross_profit_usd, cost_usd, net_profit_usd, net_margin_percent,
			profitable, detected_at
		) VALUES (
			$1, $2,
			$3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21,
			$22, $23
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Pair,
		opp.Buy.Network, opp.Buy.Venue, opp.Buy.Price, opp.Buy.Liquidity, int64(opp.Buy.BlockNumber), opp.Buy.ObservedAt,
		opp.Sell.Network, opp.Sell.Venue, opp.Sell.Price, opp.Sell.Liquidity, int64(opp.Sell.BlockNumber), opp.Sell.ObservedAt,
		opp.PriceGap, opp.PriceGapPercent, opp.ReferenceSize,
		opp.GrossProfitUSD, opp.CostUSD, opp.NetProfitUSD, opp.NetMarginPercent,
		opp.Profitable, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM opportunities ORDER BY detected_at DESC LIMIT $1`, oppSelectCols)
	return s.list(ctx, query, limit)
}

// ListBefore returns all opportunities detected strictly before the cutoff,
// oldest first. Used by the archiver.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := fmt.Sprintf(`SELECT %s FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`, oppSelectCols)
	return s.list(ctx, query, before)
}

// DeleteBefore removes all opportunities detected strictly before the cutoff
// and returns the number of deleted rows.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) list(ctx context.Context, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		var buyBlock, sellBlock int64
		if err := rows.Scan(
			&opp.ID, &opp.Pair,
			&opp.Buy.Network, &opp.Buy.Venue, &opp.Buy.Price, &opp.Buy.Liquidity, &buyBlock, &opp.Buy.ObservedAt,
			&opp.Sell.Network, &opp.Sell.Venue, &opp.Sell.Price, &opp.Sell.Liquidity, &sellBlock, &opp.Sell.ObservedAt,
			&opp.PriceGap, &opp.PriceGapPercent, &opp.ReferenceSize,
			&opp.GrossProfitUSD, &opp.CostUSD, &opp.NetProfitUSD, &opp.NetMarginPercent,
			&opp.Profitable, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opp.Buy.Pair = opp.Pair
		opp.Sell.Pair = opp.Pair
		opp.Buy.BlockNumber = uint64(buyBlock)
		opp.Sell.BlockNumber = uint64(sellBlock)
		out = append(out, opp)
	}
	return out, rows.Err()
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
