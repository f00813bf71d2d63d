package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/domain"
)

// getReservesSelector is the 4-byte selector of getReserves() on
// Uniswap-v2-style pair contracts.
var getReservesSelector = []byte{0x09, 0x02, 0xf1, 0xac}

// ConstantProduct decodes x*y=k pools: the price is the decimal-adjusted
// reserve ratio and the liquidity measure is the base-token reserve.
type ConstantProduct struct{}

// NewConstantProduct creates the constant-product quote source.
func NewConstantProduct() *ConstantProduct {
	return &ConstantProduct{}
}

// Kind returns the protocol kind this source decodes.
func (s *ConstantProduct) Kind() domain.ProtocolKind {
	return domain.KindConstantProduct
}

// FetchQuote reads getReserves() from the pool configured for the pair and
// derives price and liquidity from the reserves.
func (s *ConstantProduct) FetchQuote(ctx context.Context, v domain.Venue, pair domain.TokenPair, conn *chain.Connection) (domain.Quote, error) {
	pool, ok := v.PoolFor(pair.ID())
	if !ok {
		return domain.Quote{}, fmt.Errorf("venue %s: pair %s: %w", v.Name, pair.ID(), domain.ErrNoPool)
	}

	out, err := ethCall(ctx, conn.Client, pool.Address, getReservesSelector)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: getReserves %s: %w", v.Name, pair.ID(), err)
	}

	reserve0, err := word(out, 0)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: decode reserve0: %w", v.Name, err)
	}
	reserve1, err := word(out, 1)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: decode reserve1: %w", v.Name, err)
	}

	baseRaw, quoteRaw := reserve0, reserve1
	if !pool.BaseIsToken0 {
		baseRaw, quoteRaw = reserve1, reserve0
	}

	base := scaled(baseRaw, pair.BaseDecimals)
	quote := scaled(quoteRaw, pair.QuoteDecimals)
	if base <= 0 {
		return domain.Quote{}, fmt.Errorf("venue %s: pair %s: empty base reserve: %w", v.Name, pair.ID(), domain.ErrInvalidQuote)
	}

	return domain.Quote{
		Network:     v.Network,
		Venue:       v.Name,
		Pair:        pair.ID(),
		Price:       quote / base,
		Liquidity:   base,
		BlockNumber: conn.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	}, nil
}
