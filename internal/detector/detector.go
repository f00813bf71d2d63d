// Package detector compares cached venue quotes pairwise and models the
// profitability of cross-venue price discrepancies after execution cost.
package detector

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/calebward/chainarb/internal/domain"
)

// Estimator supplies the modeled execution cost for one network in USD.
// Implementations resolve failures to a conservative zero estimate rather
// than an error, so detection always produces output for visibility.
type Estimator interface {
	Estimate(ctx context.Context, network string) float64
}

// Config holds the detection thresholds.
type Config struct {
	// MinPriceGapPercent discards venue pairs whose relative price gap is
	// too small to be worth modeling.
	MinPriceGapPercent float64
	// MinProfitThreshold is the minimum net margin (percent) for an
	// opportunity to be flagged profitable.
	MinProfitThreshold float64
	// MaxGasCostUSD is the maximum total execution cost for an opportunity
	// to be flagged profitable.
	MaxGasCostUSD float64
	// MinLiquidity drops quotes with less base-side depth than this before
	// comparison.
	MinLiquidity float64
	// MaxReferenceSize caps the trade size taken from the buy-side
	// liquidity. Zero means no cap.
	MaxReferenceSize float64
	// MaxQuoteAge is the freshness window re-applied to detector input.
	MaxQuoteAge time.Duration
}

// Detector generates costed opportunities from the fresh quotes of one pair.
type Detector struct {
	cfg       Config
	estimator Estimator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Detector.
func New(cfg Config, estimator Estimator, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:       cfg,
		estimator: estimator,
		logger:    logger.With(slog.String("component", "detector")),
		now:       time.Now,
	}
}

// Detect compares all cross-venue combinations of the given quotes for one
// pair. The input is treated as untrusted: stale or thin quotes are filtered
// again here even though the cache already filters on read. Every surviving
// combination above the gap threshold emits an Opportunity record; callers
// forward only the profitable ones to persistence and alerting.
//
// Emission order is the insertion order of combination generation, which is
// deterministic for a deterministic input ordering.
func (d *Detector) Detect(ctx context.Context, pair string, quotes []domain.Quote) []domain.Opportunity {
	now := d.now()

	fresh := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Pair != pair {
			continue
		}
		if !q.Fresh(now, d.cfg.MaxQuoteAge) {
			continue
		}
		if q.Price <= 0 || q.Liquidity < d.cfg.MinLiquidity {
			continue
		}
		fresh = append(fresh, q)
	}
	if len(fresh) < 2 {
		return nil
	}

	var opps []domain.Opportunity
	for i := 0; i < len(fresh); i++ {
		for j := i + 1; j < len(fresh); j++ {
			a, b := fresh[i], fresh[j]
			// Comparing a venue against itself is meaningless.
			if a.Network == b.Network && a.Venue == b.Venue {
				continue
			}

			lo, hi := a, b
			if b.Price < a.Price {
				lo, hi = b, a
			}
			gap := hi.Price - lo.Price
			gapPercent := gap / lo.Price * 100
			if gapPercent < d.cfg.MinPriceGapPercent {
				continue
			}

			opp := d.cost(ctx, domain.Opportunity{
				ID:              uuid.NewString(),
				Pair:            pair,
				Buy:             lo,
				Sell:            hi,
				PriceGap:        gap,
				PriceGapPercent: gapPercent,
				ReferenceSize:   d.referenceSize(lo),
				DetectedAt:      now,
			})
			opps = append(opps, opp)
		}
	}
	return opps
}

// Validate re-runs the costing against the current cost estimate and the
// current time, for consumers that wait before acting on an emitted
// opportunity. It returns false once the underlying quotes leave the
// freshness window or the economics no longer hold.
func (d *Detector) Validate(ctx context.Context, opp domain.Opportunity) bool {
	now := d.now()
	if !opp.Buy.Fresh(now, d.cfg.MaxQuoteAge) || !opp.Sell.Fresh(now, d.cfg.MaxQuoteAge) {
		return false
	}
	recosted := d.cost(ctx, opp)
	return recosted.Profitable
}

// cost fills in the gross/net profitability fields of an opportunity from
// the current per-network cost estimates.
func (d *Detector) cost(ctx context.Context, opp domain.Opportunity) domain.Opportunity {
	gross := (opp.Sell.Price - opp.Buy.Price) * opp.ReferenceSize
	total := d.estimator.Estimate(ctx, opp.Buy.Network) + d.estimator.Estimate(ctx, opp.Sell.Network)
	net := gross - total

	// Zero gross profit cannot carry a margin; resolve to non-profitable.
	margin := 0.0
	if gross > 0 {
		margin = net / gross * 100
	}

	opp.GrossProfitUSD = gross
	opp.CostUSD = total
	opp.NetProfitUSD = net
	opp.NetMarginPercent = margin
	opp.Profitable = net > 0 &&
		margin >= d.cfg.MinProfitThreshold &&
		total <= d.cfg.MaxGasCostUSD

	if opp.Profitable {
		d.logger.Info("profitable opportunity",
			slog.String("pair", opp.Pair),
			slog.String("buy", opp.Buy.Network+"/"+opp.Buy.Venue),
			slog.String("sell", opp.Sell.Network+"/"+opp.Sell.Venue),
			slog.Float64("gap_percent", opp.PriceGapPercent),
			slog.Float64("net_usd", net),
			slog.Float64("margin_percent", margin),
		)
	}
	return opp
}

// referenceSize derives the notional trade size from the buy-side liquidity,
// optionally capped. This is a deliberately simple sizing policy standing in
// for an optimal-size search.
func (d *Detector) referenceSize(buy domain.Quote) float64 {
	size := buy.Liquidity
	if d.cfg.MaxReferenceSize > 0 {
		size = math.Min(size, d.cfg.MaxReferenceSize)
	}
	return size
}
