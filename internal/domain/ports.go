// Package domain holds the core types of the monitor and the interfaces of
// its external collaborators (node access, persistence, alerting, metrics).
package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
)

// NodeClient is the minimal surface of an EVM JSON-RPC client the core
// needs. *ethclient.Client satisfies it directly; tests supply fakes.
type NodeClient interface {
	BlockNumber(ctx context.Context) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// QuoteStore persists every observed quote for historical query.
type QuoteStore interface {
	InsertBatch(ctx context.Context, quotes []Quote) error
	ListBefore(ctx context.Context, before time.Time) ([]Quote, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityStore persists profitable opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// HealthStore persists connection-health snapshots on the health-check
// cadence.
type HealthStore interface {
	Insert(ctx context.Context, snap HealthSnapshot) error
}

// MetricsRecorder receives per-operation duration/success/failure events.
// Implementations must be safe for concurrent use and must never block the
// pipeline.
type MetricsRecorder interface {
	Record(ev MetricEvent)
}

// SignalBus provides pub/sub fan-out of pipeline output to out-of-process
// consumers (websocket hub, alert bridge, dashboards).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// QuoteMirror exposes the freshest quote per key to external readers, e.g. a
// Redis hash per (network, venue, pair).
type QuoteMirror interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, network, venue, pair string) (Quote, error)
}

// BlobWriter uploads cold-storage archives.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
