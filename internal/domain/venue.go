package domain

import "github.com/ethereum/go-ethereum/common"

// ProtocolKind selects the decoding logic for a venue. The set is closed:
// each kind maps to exactly one quote source implementation.
type ProtocolKind string

const (
	// KindConstantProduct covers Uniswap-v2-style x*y=k pools.
	KindConstantProduct ProtocolKind = "uniswap_v2"
	// KindConcentrated covers Uniswap-v3-style concentrated liquidity pools.
	KindConcentrated ProtocolKind = "uniswap_v3"
)

// Pool locates one venue pool for a monitored pair.
type Pool struct {
	Pair         string // pair identifier, e.g. "WETH/USDC"
	Address      common.Address
	BaseIsToken0 bool // true when the pair's base token is the pool's token0
}

// Venue is the static description of one exchange deployment on one network.
// Immutable after load.
type Venue struct {
	Name    string
	Network string
	Kind    ProtocolKind
	FeeBps  int
	Active  bool
	Pools   []Pool
}

// PoolFor returns the pool configured for the given pair, if any.
func (v Venue) PoolFor(pair string) (Pool, bool) {
	for _, p := range v.Pools {
		if p.Pair == pair {
			return p, true
		}
	}
	return Pool{}, false
}

// TokenPair is the static description of a monitored pair. Immutable after
// load; (Base, Quote) is unique within the active set.
type TokenPair struct {
	Base          string
	Quote         string
	BaseAddress   common.Address
	QuoteAddress  common.Address
	BaseDecimals  int
	QuoteDecimals int
}

// ID returns the canonical pair identifier, e.g. "WETH/USDC".
func (p TokenPair) ID() string {
	return p.Base + "/" + p.Quote
}
