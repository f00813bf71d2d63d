package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebward/chainarb/internal/cache/memory"
	"github.com/calebward/chainarb/internal/detector"
	"github.com/calebward/chainarb/internal/domain"
)

// Bus channel names published by the runner.
const (
	ChannelQuotes        = "quotes"
	ChannelOpportunities = "opportunities"
	ChannelHealth        = "health"
)

// HealthChecker is the runner's view of the connection manager's health
// operations.
type HealthChecker interface {
	HealthCheckAll(ctx context.Context) []domain.HealthSnapshot
	ConnectionStatus() map[string]bool
}

// RunnerConfig holds the loop intervals.
type RunnerConfig struct {
	PriceInterval  time.Duration
	HealthInterval time.Duration
}

// Runner drives two independent periodic loops: the price-monitoring loop
// (poll, detect, forward) and the slower health-check loop. Collaborator
// failures (persistence, bus, alerts) are logged and never stop the loops;
// only context cancellation ends a Run.
type Runner struct {
	cfg      RunnerConfig
	poller   *Poller
	detector *detector.Detector
	cache    *memory.PriceCache
	health   HealthChecker
	metrics  domain.MetricsRecorder
	logger   *slog.Logger

	// Optional collaborators; nil disables the corresponding forwarding.
	quoteStore  domain.QuoteStore
	oppStore    domain.OpportunityStore
	healthStore domain.HealthStore
	bus         domain.SignalBus
	mirror      domain.QuoteMirror
}

// RunnerOption configures optional collaborators.
type RunnerOption func(*Runner)

// WithQuoteStore forwards every cached quote to the persistence collaborator.
func WithQuoteStore(s domain.QuoteStore) RunnerOption {
	return func(r *Runner) { r.quoteStore = s }
}

// WithOpportunityStore persists profitable opportunities.
func WithOpportunityStore(s domain.OpportunityStore) RunnerOption {
	return func(r *Runner) { r.oppStore = s }
}

// WithHealthStore persists health snapshots on the health-check cadence.
func WithHealthStore(s domain.HealthStore) RunnerOption {
	return func(r *Runner) { r.healthStore = s }
}

// WithSignalBus publishes quotes, profitable opportunities, and health
// snapshots for out-of-process consumers.
func WithSignalBus(b domain.SignalBus) RunnerOption {
	return func(r *Runner) { r.bus = b }
}

// WithQuoteMirror mirrors the freshest quotes to an external cache.
func WithQuoteMirror(m domain.QuoteMirror) RunnerOption {
	return func(r *Runner) { r.mirror = m }
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, poller *Poller, det *detector.Detector, cache *memory.PriceCache, health HealthChecker, metrics domain.MetricsRecorder, logger *slog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:      cfg,
		poller:   poller,
		detector: det,
		cache:    cache,
		health:   health,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "monitor")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts both loops and blocks until the context is cancelled. An
// in-flight cycle is allowed to settle before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("monitor starting",
		slog.Duration("price_interval", r.cfg.PriceInterval),
		slog.Duration("health_interval", r.cfg.HealthInterval),
		slog.Int("matrix_size", r.poller.TaskCount()),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.priceLoop(ctx) })
	g.Go(func() error { return r.healthLoop(ctx) })

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (r *Runner) priceLoop(ctx context.Context) error {
	// First health pass before polling so the first cycle has connections.
	r.runHealthPass(ctx)
	r.runCycle(ctx)

	ticker := time.NewTicker(r.cfg.PriceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("price loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) healthLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("health loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runHealthPass(ctx)
		}
	}
}

// runCycle performs one full pipeline pass: poll, persist quotes, detect,
// and forward profitable opportunities.
func (r *Runner) runCycle(ctx context.Context) {
	start := time.Now()

	fetched := r.poller.RunCycle(ctx)
	if ctx.Err() != nil {
		return
	}
	r.forwardQuotes(ctx, fetched)

	opps := r.detectAll(ctx)
	profitable := 0
	for _, opp := range opps {
		if !opp.Profitable {
			continue
		}
		profitable++
		r.forwardOpportunity(ctx, opp)
	}

	if r.metrics != nil {
		r.metrics.Record(domain.MetricEvent{
			Op:       "detector.cycle",
			Duration: time.Since(start),
			Success:  true,
			At:       time.Now(),
		})
	}
	r.logger.Debug("cycle complete",
		slog.Int("fetched", len(fetched)),
		slog.Int("opportunities", len(opps)),
		slog.Int("profitable", profitable),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// detectAll runs detection for every pair concurrently. Each pair's quote
// set is independent and the cache is read-only during detection, so the
// per-pair work is embarrassingly parallel; results are reassembled in
// sorted pair order to keep emission deterministic.
func (r *Runner) detectAll(ctx context.Context) []domain.Opportunity {
	byPair := r.cache.FreshByPair()

	pairs := make([]string, 0, len(byPair))
	for pair := range byPair {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	var mu sync.Mutex
	results := make(map[string][]domain.Opportunity, len(pairs))

	var g errgroup.Group
	for _, pair := range pairs {
		quotes := byPair[pair]
		g.Go(func() error {
			opps := r.detector.Detect(ctx, pair, quotes)
			mu.Lock()
			results[pair] = opps
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.Opportunity
	for _, pair := range pairs {
		out = append(out, results[pair]...)
	}
	return out
}

// forwardQuotes hands this cycle's quotes to the persistence collaborator,
// the mirror, and the bus. None of these require acknowledgment; failures
// are logged, not retried.
func (r *Runner) forwardQuotes(ctx context.Context, quotes []domain.Quote) {
	if len(quotes) == 0 {
		return
	}
	if r.quoteStore != nil {
		if err := r.quoteStore.InsertBatch(ctx, quotes); err != nil {
			r.logger.Warn("quote persistence failed", slog.String("error", err.Error()))
		}
	}
	if r.mirror != nil {
		for _, q := range quotes {
			if err := r.mirror.SetQuote(ctx, q); err != nil {
				r.logger.Warn("quote mirror failed", slog.String("error", err.Error()))
				break
			}
		}
	}
	if r.bus != nil {
		for _, q := range quotes {
			payload, err := json.Marshal(q)
			if err != nil {
				continue
			}
			if err := r.bus.Publish(ctx, ChannelQuotes, payload); err != nil {
				r.logger.Warn("quote publish failed", slog.String("error", err.Error()))
				break
			}
		}
	}
}

func (r *Runner) forwardOpportunity(ctx context.Context, opp domain.Opportunity) {
	if r.oppStore != nil {
		if err := r.oppStore.Insert(ctx, opp); err != nil {
			r.logger.Warn("opportunity persistence failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.bus != nil {
		payload, err := json.Marshal(opp)
		if err != nil {
			return
		}
		if err := r.bus.Publish(ctx, ChannelOpportunities, payload); err != nil {
			r.logger.Warn("opportunity publish failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runHealthPass probes every network and forwards the snapshots.
func (r *Runner) runHealthPass(ctx context.Context) {
	snaps := r.health.HealthCheckAll(ctx)
	for _, snap := range snaps {
		if r.healthStore != nil {
			if err := r.healthStore.Insert(ctx, snap); err != nil {
				r.logger.Warn("health persistence failed",
					slog.String("network", snap.Network),
					slog.String("error", err.Error()),
				)
			}
		}
		if r.bus != nil {
			payload, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := r.bus.Publish(ctx, ChannelHealth, payload); err != nil {
				r.logger.Warn("health publish failed", slog.String("error", err.Error()))
			}
		}
	}
}
