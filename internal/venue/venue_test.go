package venue

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/domain"
)

// callClient serves canned return data keyed by the 4-byte selector.
type callClient struct {
	returns map[string][]byte
	err     error
}

func (c *callClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	if out, ok := c.returns[string(msg.Data[:4])]; ok {
		return out, nil
	}
	return nil, errors.New("execution reverted")
}

func (c *callClient) BlockNumber(ctx context.Context) (uint64, error)       { return 0, nil }
func (c *callClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) { return nil, nil }
func (c *callClient) Close()                                                {}

func encodeWords(words ...*big.Int) []byte {
	var buf bytes.Buffer
	for _, w := range words {
		out := make([]byte, 32)
		w.FillBytes(out)
		buf.Write(out)
	}
	return buf.Bytes()
}

func wethUsdc() domain.TokenPair {
	return domain.TokenPair{
		Base:          "WETH",
		Quote:         "USDC",
		BaseDecimals:  18,
		QuoteDecimals: 6,
	}
}

func testVenue(kind domain.ProtocolKind, baseIsToken0 bool) domain.Venue {
	return domain.Venue{
		Name:    "uniswap",
		Network: "ethereum",
		Kind:    kind,
		FeeBps:  30,
		Active:  true,
		Pools: []domain.Pool{{
			Pair:         "WETH/USDC",
			Address:      common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc"),
			BaseIsToken0: baseIsToken0,
		}},
	}
}

func connWith(client domain.NodeClient) *chain.Connection {
	return &chain.Connection{
		Network:     "ethereum",
		Client:      client,
		Healthy:     true,
		BlockNumber: 19_000_000,
		BlockTime:   time.Now(),
	}
}

// raw reserve helpers: 100 WETH and 200k USDC gives a 2000 price.
func reserveWords() []byte {
	r0 := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	r1 := new(big.Int).Mul(big.NewInt(200_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))
	ts := big.NewInt(1_700_000_000)
	return encodeWords(r0, r1, ts)
}

func TestConstantProduct_FetchQuote(t *testing.T) {
	client := &callClient{returns: map[string][]byte{
		string(getReservesSelector): reserveWords(),
	}}

	src := NewConstantProduct()
	q, err := src.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, true), wethUsdc(), connWith(client))
	require.NoError(t, err)

	assert.InDelta(t, 2000.0, q.Price, 1e-6)
	assert.InDelta(t, 100.0, q.Liquidity, 1e-9)
	assert.Equal(t, uint64(19_000_000), q.BlockNumber)
	assert.Equal(t, "ethereum:uniswap:WETH/USDC", q.Key())
	assert.NoError(t, q.Validate())
}

func TestConstantProduct_BaseIsToken1(t *testing.T) {
	// Same pool with reserves swapped: USDC is token0.
	r0 := new(big.Int).Mul(big.NewInt(200_000), new(big.Int).Exp(big.NewInt(10), big.NewInt(6), nil))
	r1 := new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	client := &callClient{returns: map[string][]byte{
		string(getReservesSelector): encodeWords(r0, r1, big.NewInt(0)),
	}}

	src := NewConstantProduct()
	q, err := src.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, false), wethUsdc(), connWith(client))
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, q.Price, 1e-6)
	assert.InDelta(t, 100.0, q.Liquidity, 1e-9)
}

func TestConstantProduct_EmptyReserve(t *testing.T) {
	client := &callClient{returns: map[string][]byte{
		string(getReservesSelector): encodeWords(big.NewInt(0), big.NewInt(0), big.NewInt(0)),
	}}

	src := NewConstantProduct()
	_, err := src.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, true), wethUsdc(), connWith(client))
	assert.ErrorIs(t, err, domain.ErrInvalidQuote)
}

func TestConstantProduct_ShortReturnData(t *testing.T) {
	client := &callClient{returns: map[string][]byte{
		string(getReservesSelector): make([]byte, 16),
	}}

	src := NewConstantProduct()
	_, err := src.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, true), wethUsdc(), connWith(client))
	assert.Error(t, err)
}

// sqrtX96 packs a float square-root price into the X96 fixed-point format.
func sqrtX96(ratio float64) *big.Int {
	sp := new(big.Float).SetFloat64(math.Sqrt(ratio))
	scaled := new(big.Float).Mul(sp, q96)
	out, _ := scaled.Int(nil)
	return out
}

func TestDecodeSqrtPrice_BaseIsToken0(t *testing.T) {
	// 2000 USDC per WETH in raw terms: 2000 * 10^(6-18) = 2e-9.
	price, depth := decodeSqrtPrice(sqrtX96(2e-9), big.NewInt(1_000_000_000_000_000), true, wethUsdc())
	assert.InDelta(t, 2000.0, price, 1.0)
	assert.Positive(t, depth)
}

func TestDecodeSqrtPrice_BaseIsToken1(t *testing.T) {
	// Inverted pool: 1/(2000 * 10^-12) = 5e8 raw token1 per token0.
	price, depth := decodeSqrtPrice(sqrtX96(5e8), big.NewInt(1_000_000_000), false, wethUsdc())
	assert.InDelta(t, 2000.0, price, 1.0)
	assert.Positive(t, depth)
}

func TestConcentrated_FetchQuote(t *testing.T) {
	slot0 := make([]byte, 7*32)
	sqrtX96(2e-9).FillBytes(slot0[:32])
	client := &callClient{returns: map[string][]byte{
		string(slot0Selector):     slot0,
		string(liquiditySelector): encodeWords(big.NewInt(1_000_000_000_000_000)),
	}}

	src := NewConcentrated()
	q, err := src.FetchQuote(context.Background(), testVenue(domain.KindConcentrated, true), wethUsdc(), connWith(client))
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, q.Price, 1.0)
	assert.Positive(t, q.Liquidity)
	assert.NoError(t, q.Validate())
}

func TestConcentrated_ZeroSqrtPrice(t *testing.T) {
	client := &callClient{returns: map[string][]byte{
		string(slot0Selector):     make([]byte, 7*32),
		string(liquiditySelector): encodeWords(big.NewInt(1)),
	}}

	src := NewConcentrated()
	_, err := src.FetchQuote(context.Background(), testVenue(domain.KindConcentrated, true), wethUsdc(), connWith(client))
	assert.ErrorIs(t, err, domain.ErrInvalidQuote)
}

func TestRegistry_Dispatch(t *testing.T) {
	client := &callClient{returns: map[string][]byte{
		string(getReservesSelector): reserveWords(),
	}}

	reg := DefaultRegistry()
	q, err := reg.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, true), wethUsdc(), connWith(client))
	require.NoError(t, err)
	assert.InDelta(t, 2000.0, q.Price, 1e-6)
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := DefaultRegistry()
	v := testVenue("balancer", true)
	_, err := reg.FetchQuote(context.Background(), v, wethUsdc(), connWith(&callClient{}))
	assert.ErrorIs(t, err, domain.ErrUnknownProtocol)
}

func TestFetchQuote_NoPoolForPair(t *testing.T) {
	v := testVenue(domain.KindConstantProduct, true)
	pair := domain.TokenPair{Base: "WBTC", Quote: "USDC", BaseDecimals: 8, QuoteDecimals: 6}

	src := NewConstantProduct()
	_, err := src.FetchQuote(context.Background(), v, pair, connWith(&callClient{}))
	assert.ErrorIs(t, err, domain.ErrNoPool)
}

func TestFetchQuote_CallFailure(t *testing.T) {
	client := &callClient{err: errors.New("connection reset")}
	src := NewConstantProduct()
	_, err := src.FetchQuote(context.Background(), testVenue(domain.KindConstantProduct, true), wethUsdc(), connWith(client))
	assert.Error(t, err)
}
