package detector

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebward/chainarb/internal/domain"
)

type fakeEstimator struct {
	perNetwork map[string]float64
	calls      int
}

func (f *fakeEstimator) Estimate(ctx context.Context, network string) float64 {
	f.calls++
	return f.perNetwork[network]
}

func testConfig() Config {
	return Config{
		MinPriceGapPercent: 0.5,
		MinProfitThreshold: 1.0,
		MaxGasCostUSD:      100,
		MaxQuoteAge:        30 * time.Second,
	}
}

func newTestDetector(cfg Config, est Estimator, now time.Time) *Detector {
	d := New(cfg, est, slog.New(slog.DiscardHandler))
	d.now = func() time.Time { return now }
	return d
}

func makeQuote(network, venue string, price, liquidity float64, observed time.Time) domain.Quote {
	return domain.Quote{
		Network:     network,
		Venue:       venue,
		Pair:        "WETH/USDC",
		Price:       price,
		Liquidity:   liquidity,
		BlockNumber: 100,
		ObservedAt:  observed,
	}
}

func TestDetect_ProfitableGap(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 25, "polygon": 25}}
	d := newTestDetector(testConfig(), est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "ethereum", opp.Buy.Network)
	assert.Equal(t, "polygon", opp.Sell.Network)
	assert.InDelta(t, 50.0, opp.PriceGap, 1e-9)
	assert.InDelta(t, 2.5, opp.PriceGapPercent, 1e-9)

	// Sizing comes from the buy side only.
	assert.InDelta(t, 10.0, opp.ReferenceSize, 1e-9)
	assert.InDelta(t, 500.0, opp.GrossProfitUSD, 1e-9)
	assert.InDelta(t, 50.0, opp.CostUSD, 1e-9)
	assert.InDelta(t, 450.0, opp.NetProfitUSD, 1e-9)
	assert.InDelta(t, 90.0, opp.NetMarginPercent, 1e-9)
	assert.True(t, opp.Profitable)
	assert.NotEmpty(t, opp.ID)
}

func TestDetect_CostExceedsGross(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 300, "polygon": 300}}
	d := newTestDetector(testConfig(), est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Len(t, opps, 1)

	// Still emitted for visibility, but negative net profit.
	assert.InDelta(t, -100.0, opps[0].NetProfitUSD, 1e-9)
	assert.False(t, opps[0].Profitable)
}

func TestDetect_GapBelowThresholdSkipsCosting(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MinPriceGapPercent = 2.0
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(cfg, est, now)

	// 0.5% gap, below the 2% threshold.
	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2010, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	assert.Empty(t, opps)
	assert.Zero(t, est.calls, "sub-threshold pairs must not be costed")
}

func TestDetect_SameVenueSkipped(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(testConfig(), est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("ethereum", "uniswap", 2100, 10, now),
	}

	assert.Empty(t, d.Detect(context.Background(), "WETH/USDC", quotes))
}

func TestDetect_StaleQuotesFiltered(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(testConfig(), est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now.Add(-time.Minute)),
	}

	assert.Empty(t, d.Detect(context.Background(), "WETH/USDC", quotes))
}

func TestDetect_ThinLiquidityFiltered(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MinLiquidity = 5
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(cfg, est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 1, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	assert.Empty(t, d.Detect(context.Background(), "WETH/USDC", quotes))
}

func TestDetect_ReferenceSizeCapped(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxReferenceSize = 4
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(cfg, est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Len(t, opps, 1)
	assert.InDelta(t, 4.0, opps[0].ReferenceSize, 1e-9)
	assert.InDelta(t, 200.0, opps[0].GrossProfitUSD, 1e-9)
}

func TestDetect_MarginThreshold(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MinProfitThreshold = 95 // percent
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 25, "polygon": 25}}
	d := newTestDetector(cfg, est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Len(t, opps, 1)
	// 90% margin is positive but below the 95% floor.
	assert.Positive(t, opps[0].NetProfitUSD)
	assert.False(t, opps[0].Profitable)
}

func TestDetect_GasCeiling(t *testing.T) {
	now := time.Now()
	cfg := testConfig()
	cfg.MaxGasCostUSD = 40
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 25, "polygon": 25}}
	d := newTestDetector(cfg, est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	}

	opps := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Len(t, opps, 1)
	assert.Positive(t, opps[0].NetProfitUSD)
	assert.False(t, opps[0].Profitable, "cost above the gas ceiling disqualifies")
}

func TestDetect_Deterministic(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 10, "polygon": 10, "arbitrum": 10}}
	d := newTestDetector(testConfig(), est, now)

	quotes := []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
		makeQuote("arbitrum", "camelot", 2100, 40, now),
	}

	first := d.Detect(context.Background(), "WETH/USDC", quotes)
	second := d.Detect(context.Background(), "WETH/USDC", quotes)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Buy.Key(), second[i].Buy.Key())
		assert.Equal(t, first[i].Sell.Key(), second[i].Sell.Key())
		assert.Equal(t, first[i].NetProfitUSD, second[i].NetProfitUSD)
	}
}

func TestDetect_FewerThanTwoQuotes(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{}}
	d := newTestDetector(testConfig(), est, now)

	assert.Nil(t, d.Detect(context.Background(), "WETH/USDC", nil))
	assert.Nil(t, d.Detect(context.Background(), "WETH/USDC", []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
	}))
}

func TestValidate_ExpiresWithQuotes(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 25, "polygon": 25}}
	d := newTestDetector(testConfig(), est, now)

	opps := d.Detect(context.Background(), "WETH/USDC", []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	})
	require.Len(t, opps, 1)
	require.True(t, opps[0].Profitable)

	assert.True(t, d.Validate(context.Background(), opps[0]))

	// Advance past the freshness window.
	d.now = func() time.Time { return now.Add(time.Minute) }
	assert.False(t, d.Validate(context.Background(), opps[0]))
}

func TestValidate_RecostsWithCurrentEstimates(t *testing.T) {
	now := time.Now()
	est := &fakeEstimator{perNetwork: map[string]float64{"ethereum": 25, "polygon": 25}}
	d := newTestDetector(testConfig(), est, now)

	opps := d.Detect(context.Background(), "WETH/USDC", []domain.Quote{
		makeQuote("ethereum", "uniswap", 2000, 10, now),
		makeQuote("polygon", "quickswap", 2050, 80, now),
	})
	require.Len(t, opps, 1)

	// Gas spikes after detection.
	est.perNetwork["ethereum"] = 400
	est.perNetwork["polygon"] = 400
	assert.False(t, d.Validate(context.Background(), opps[0]))
}
