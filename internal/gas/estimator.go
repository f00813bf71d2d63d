// Package gas models per-network execution cost in USD from live fee rates.
package gas

import (
	"context"
	"log/slog"
	"sync"

	"github.com/calebward/chainarb/internal/detector"
	"github.com/calebward/chainarb/internal/domain"
)

// weiPerNative is the wei-to-native-token divisor (10^18).
const weiPerNative = 1e18

// FeeRater supplies the current fee rate for a network in wei per gas unit.
// The connection manager implements it.
type FeeRater interface {
	CurrentFeeRate(ctx context.Context, network string) (float64, error)
}

// RateSource converts a network's native fee token to USD. A real deployment
// would back this with a live feed; the fixed implementation below is the
// configured fallback.
type RateSource interface {
	NativeUSD(network string) float64
}

// FixedRates is a RateSource with one configured rate per network.
type FixedRates map[string]float64

// NativeUSD returns the configured rate, or zero for unknown networks.
func (r FixedRates) NativeUSD(network string) float64 {
	return r[network]
}

// Estimator computes feeRate * assumed gas units, converted to USD. A
// fee-rate failure resolves to a conservative zero estimate with a warning,
// never an error: the detector must still produce output for visibility.
type Estimator struct {
	fees     FeeRater
	rates    RateSource
	gasUnits map[string]uint64
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]float64 // last good estimate per network
}

// NewEstimator creates an Estimator. gasUnits holds each network's assumed
// gas usage for a single swap.
func NewEstimator(fees FeeRater, rates RateSource, networks []domain.Network, logger *slog.Logger) *Estimator {
	gasUnits := make(map[string]uint64, len(networks))
	for _, n := range networks {
		gasUnits[n.ID] = n.GasUnits
	}
	return &Estimator{
		fees:     fees,
		rates:    rates,
		gasUnits: gasUnits,
		logger:   logger.With(slog.String("component", "gas_estimator")),
		last:     make(map[string]float64),
	}
}

// Estimate returns the modeled execution cost for one swap on the network in
// USD. When the live fee rate is unavailable it falls back to the last good
// estimate, or zero when none exists yet.
func (e *Estimator) Estimate(ctx context.Context, network string) float64 {
	units, ok := e.gasUnits[network]
	if !ok {
		return 0
	}

	feeWei, err := e.fees.CurrentFeeRate(ctx, network)
	if err != nil {
		e.mu.Lock()
		fallback := e.last[network]
		e.mu.Unlock()
		e.logger.Warn("fee rate unavailable, using fallback estimate",
			slog.String("network", network),
			slog.Float64("fallback_usd", fallback),
			slog.String("error", err.Error()),
		)
		return fallback
	}

	native := feeWei * float64(units) / weiPerNative
	usd := native * e.rates.NativeUSD(network)

	e.mu.Lock()
	e.last[network] = usd
	e.mu.Unlock()
	return usd
}

// Compile-time interface check.
var _ detector.Estimator = (*Estimator)(nil)
