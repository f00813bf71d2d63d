// Package venue implements the quote source capability: one decoder per
// venue protocol kind, reading pool contract state through a resolved
// network connection.
package venue

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/domain"
)

// Source fetches one quote for a pair on a venue. Implementations are
// selected by the venue's configured protocol kind; the set is closed.
type Source interface {
	Kind() domain.ProtocolKind
	FetchQuote(ctx context.Context, v domain.Venue, pair domain.TokenPair, conn *chain.Connection) (domain.Quote, error)
}

// Registry dispatches fetches to the source matching a venue's kind.
type Registry struct {
	sources map[domain.ProtocolKind]Source
}

// NewRegistry builds a Registry over the given sources.
func NewRegistry(sources ...Source) *Registry {
	m := make(map[domain.ProtocolKind]Source, len(sources))
	for _, s := range sources {
		m[s.Kind()] = s
	}
	return &Registry{sources: m}
}

// DefaultRegistry returns a Registry with every built-in protocol kind.
func DefaultRegistry() *Registry {
	return NewRegistry(NewConstantProduct(), NewConcentrated())
}

// FetchQuote fetches a quote using the source registered for the venue's
// kind.
func (r *Registry) FetchQuote(ctx context.Context, v domain.Venue, pair domain.TokenPair, conn *chain.Connection) (domain.Quote, error) {
	src, ok := r.sources[v.Kind]
	if !ok {
		return domain.Quote{}, fmt.Errorf("venue %s: kind %q: %w", v.Name, v.Kind, domain.ErrUnknownProtocol)
	}
	return src.FetchQuote(ctx, v, pair, conn)
}

// ethCall performs a read-only contract call against the latest block.
func ethCall(ctx context.Context, client domain.NodeClient, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return client.CallContract(ctx, msg, nil)
}

// word extracts the i-th 32-byte return word as a big integer.
func word(out []byte, i int) (*big.Int, error) {
	if len(out) < (i+1)*32 {
		return nil, fmt.Errorf("return data too short: have %d bytes, want word %d", len(out), i)
	}
	return new(big.Int).SetBytes(out[i*32 : (i+1)*32]), nil
}

// scaled converts a raw token amount to a float in whole-token units.
func scaled(raw *big.Int, decimals int) float64 {
	f, _ := new(big.Float).SetInt(raw).Float64()
	return f / math.Pow10(decimals)
}
