package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebward/chainarb/internal/domain"
)

// HealthStore implements domain.HealthStore using PostgreSQL.
type HealthStore struct {
	pool *pgxpool.Pool
}

// NewHealthStore creates a new HealthStore backed by the given connection
// pool.
func NewHealthStore(pool *pgxpool.Pool) *HealthStore {
	return &HealthStore{pool: pool}
}

// Insert stores one health snapshot. Per-endpoint detail goes into a JSONB
// column so the schema does not have to track endpoint churn.
func (s *HealthStore) Insert(ctx context.Context, snap domain.HealthSnapshot) error {
	endpoints, err := json.Marshal(snap.Endpoints)
	if err != nil {
		return fmt.Errorf("postgres: marshal endpoints for %s: %w", snap.Network, err)
	}

	const query = `
		INSERT INTO health_snapshots (
			id, network, healthy, block_number, block_time, endpoints, taken_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	var blockTime any
	if !snap.BlockTime.IsZero() {
		blockTime = snap.BlockTime
	}

	_, err = s.pool.Exec(ctx, query,
		snap.ID, snap.Network, snap.Healthy, int64(snap.BlockNumber),
		blockTime, endpoints, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert health snapshot %s: %w", snap.Network, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HealthStore = (*HealthStore)(nil)
