package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebward/chainarb/internal/domain"
)

// QuoteStore implements domain.QuoteStore using PostgreSQL.
type QuoteStore struct {
	pool *pgxpool.Pool
}

// NewQuoteStore creates a new QuoteStore backed by the given connection
// pool.
func NewQuoteStore(pool *pgxpool.Pool) *QuoteStore {
	return &QuoteStore{pool: pool}
}

// InsertBatch stores one cycle's quotes in a single batch. Each record gets
// a fresh unique id.
func (s *QuoteStore) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	const query = `
		INSERT INTO quotes (
			id, network, venue, pair, price, liquidity, block_number, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(query,
			uuid.NewString(), q.Network, q.Venue, q.Pair,
			q.Price, q.Liquidity, int64(q.BlockNumber), q.ObservedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range quotes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert quotes: %w", err)
		}
	}
	return nil
}

// ListBefore returns all quotes observed strictly before the cutoff, oldest
// first. Used by the archiver.
func (s *QuoteStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	const query = `
		SELECT network, venue, pair, price, liquidity, block_number, observed_at
		FROM quotes
		WHERE observed_at < $1
		ORDER BY observed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list quotes before: %w", err)
	}
	defer rows.Close()

	var out []domain.Quote
	for rows.Next() {
		var q domain.Quote
		var block int64
		if err := rows.Scan(&q.Network, &q.Venue, &q.Pair, &q.Price, &q.Liquidity, &block, &q.ObservedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan quote: %w", err)
		}
		q.BlockNumber = uint64(block)
		out = append(out, q)
	}
	return out, rows.Err()
}

// DeleteBefore removes all quotes observed strictly before the cutoff and
// returns the number of deleted rows.
func (s *QuoteStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete quotes before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.QuoteStore = (*QuoteStore)(nil)
