package venue

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/domain"
)

var (
	// slot0Selector is the 4-byte selector of slot0() on Uniswap-v3-style
	// pool contracts; the first return word packs sqrtPriceX96.
	slot0Selector = []byte{0x38, 0x50, 0xc7, 0xbd}
	// liquiditySelector is the 4-byte selector of liquidity().
	liquiditySelector = []byte{0x1a, 0x68, 0x65, 0x02}
)

// q96 is 2^96, the fixed-point scale of sqrtPriceX96.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// Concentrated decodes concentrated-liquidity pools: the price comes from
// the packed sqrtPriceX96 representation in slot0 and the liquidity measure
// is the in-range base-token depth derived from the pool's active liquidity.
type Concentrated struct{}

// NewConcentrated creates the concentrated-liquidity quote source.
func NewConcentrated() *Concentrated {
	return &Concentrated{}
}

// Kind returns the protocol kind this source decodes.
func (s *Concentrated) Kind() domain.ProtocolKind {
	return domain.KindConcentrated
}

// FetchQuote reads slot0() and liquidity() from the pool configured for the
// pair and derives price and an approximate base-side depth.
func (s *Concentrated) FetchQuote(ctx context.Context, v domain.Venue, pair domain.TokenPair, conn *chain.Connection) (domain.Quote, error) {
	pool, ok := v.PoolFor(pair.ID())
	if !ok {
		return domain.Quote{}, fmt.Errorf("venue %s: pair %s: %w", v.Name, pair.ID(), domain.ErrNoPool)
	}

	out, err := ethCall(ctx, conn.Client, pool.Address, slot0Selector)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: slot0 %s: %w", v.Name, pair.ID(), err)
	}
	sqrtPriceX96, err := word(out, 0)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: decode sqrtPriceX96: %w", v.Name, err)
	}
	if sqrtPriceX96.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("venue %s: pair %s: zero sqrt price: %w", v.Name, pair.ID(), domain.ErrInvalidQuote)
	}

	liqOut, err := ethCall(ctx, conn.Client, pool.Address, liquiditySelector)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: liquidity %s: %w", v.Name, pair.ID(), err)
	}
	liquidityRaw, err := word(liqOut, 0)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: decode liquidity: %w", v.Name, err)
	}

	price, depth := decodeSqrtPrice(sqrtPriceX96, liquidityRaw, pool.BaseIsToken0, pair)
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return domain.Quote{}, fmt.Errorf("venue %s: pair %s: implausible price %v: %w", v.Name, pair.ID(), price, domain.ErrInvalidQuote)
	}

	return domain.Quote{
		Network:     v.Network,
		Venue:       v.Name,
		Pair:        pair.ID(),
		Price:       price,
		Liquidity:   depth,
		BlockNumber: conn.BlockNumber,
		ObservedAt:  time.Now().UTC(),
	}, nil
}

// decodeSqrtPrice converts the packed sqrtPriceX96 to a quote-per-base
// price and derives the approximate base-token depth at the current tick
// (token0 depth = L / sqrtP, token1 depth = L * sqrtP, in raw units).
func decodeSqrtPrice(sqrtPriceX96, liquidityRaw *big.Int, baseIsToken0 bool, pair domain.TokenPair) (price, depth float64) {
	sqrtP := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	ratio := new(big.Float).Mul(sqrtP, sqrtP) // token1 raw per token0 raw
	ratioF, _ := ratio.Float64()

	liq := new(big.Float).SetInt(liquidityRaw)

	if baseIsToken0 {
		price = ratioF * math.Pow10(pair.BaseDecimals-pair.QuoteDecimals)
		baseRaw, _ := new(big.Float).Quo(liq, sqrtP).Float64()
		depth = baseRaw / math.Pow10(pair.BaseDecimals)
	} else {
		if ratioF > 0 {
			price = (1 / ratioF) * math.Pow10(pair.BaseDecimals-pair.QuoteDecimals)
		}
		baseRaw, _ := new(big.Float).Mul(liq, sqrtP).Float64()
		depth = baseRaw / math.Pow10(pair.BaseDecimals)
	}
	return price, depth
}
