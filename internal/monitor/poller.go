// Package monitor drives the polling and detection cycles: the poller fans
// out over the (network, venue, pair) matrix and the runner schedules the
// price-monitoring and health-check loops.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/calebward/chainarb/internal/chain"
	"github.com/calebward/chainarb/internal/domain"
)

// Resolver yields a working connection for a network. The connection manager
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, network string) (*chain.Connection, error)
}

// Fetcher fetches one quote through a resolved connection. The venue
// registry implements it.
type Fetcher interface {
	FetchQuote(ctx context.Context, v domain.Venue, pair domain.TokenPair, conn *chain.Connection) (domain.Quote, error)
}

// Cache is the poller's write side of the price cache.
type Cache interface {
	Put(q domain.Quote)
}

// PollerConfig holds the fetch loop tunables.
type PollerConfig struct {
	// MinRefetchInterval suppresses repeat fetches of the same combination.
	MinRefetchInterval time.Duration
	// FetchTimeout bounds each individual quote fetch.
	FetchTimeout time.Duration
	// MaxConcurrent is the global ceiling on in-flight fetches.
	MaxConcurrent int64
	// RatePerSec is the global fetch rate limit; zero disables it.
	RatePerSec float64
}

// task is one (venue, pair) combination of the configured matrix.
type task struct {
	venue domain.Venue
	pair  domain.TokenPair
}

// Poller iterates the configured matrix once per cycle, fetching quotes
// concurrently with best-effort semantics: one combination's failure never
// prevents the others from completing.
type Poller struct {
	cfg      PollerConfig
	resolver Resolver
	fetcher  Fetcher
	cache    Cache
	metrics  domain.MetricsRecorder
	logger   *slog.Logger

	sem     *semaphore.Weighted
	limiter *rate.Limiter
	tasks   []task

	mu        sync.Mutex
	lastFetch map[string]time.Time
	now       func() time.Time
}

// NewPoller builds the fetch matrix from the configured venues and pairs.
// Only combinations with a configured pool participate.
func NewPoller(cfg PollerConfig, resolver Resolver, fetcher Fetcher, cache Cache, venues []domain.Venue, pairs []domain.TokenPair, metrics domain.MetricsRecorder, logger *slog.Logger) *Poller {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	byID := make(map[string]domain.TokenPair, len(pairs))
	for _, p := range pairs {
		byID[p.ID()] = p
	}

	sorted := make([]domain.Venue, len(venues))
	copy(sorted, venues)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Network != sorted[j].Network {
			return sorted[i].Network < sorted[j].Network
		}
		return sorted[i].Name < sorted[j].Name
	})

	var tasks []task
	for _, v := range sorted {
		for _, pool := range v.Pools {
			pair, ok := byID[pool.Pair]
			if !ok {
				continue
			}
			tasks = append(tasks, task{venue: v, pair: pair})
		}
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.MaxConcurrent))
	}

	return &Poller{
		cfg:       cfg,
		resolver:  resolver,
		fetcher:   fetcher,
		cache:     cache,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "poller")),
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		limiter:   limiter,
		tasks:     tasks,
		lastFetch: make(map[string]time.Time),
		now:       time.Now,
	}
}

// RunCycle fetches every due combination concurrently and returns the quotes
// that were successfully cached this cycle. The cycle completes only once
// every fan-out task has settled; individual failures are logged and
// recorded as metric events, never propagated.
func (p *Poller) RunCycle(ctx context.Context) []domain.Quote {
	var (
		mu      sync.Mutex
		fetched []domain.Quote
	)

	var g errgroup.Group
	for _, t := range p.tasks {
		if !p.due(t) {
			continue
		}
		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer p.sem.Release(1)

			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil
				}
			}

			if q, ok := p.fetchOne(ctx, t); ok {
				mu.Lock()
				fetched = append(fetched, q)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures are per-task events

	return fetched
}

// due reports whether the combination has not been fetched within the
// refetch interval, and marks the attempt time when it is due.
func (p *Poller) due(t task) bool {
	key := t.venue.Network + ":" + t.venue.Name + ":" + t.pair.ID()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastFetch[key]; ok && now.Sub(last) < p.cfg.MinRefetchInterval {
		return false
	}
	p.lastFetch[key] = now
	return true
}

// fetchOne performs a single fetch: resolve a connection, invoke the quote
// source, validate, and cache. A failure leaves the previous cached quote
// untouched; stale data is preferable to no data.
func (p *Poller) fetchOne(ctx context.Context, t task) (domain.Quote, bool) {
	start := p.now()

	ev := domain.MetricEvent{
		Op:      "quote.fetch",
		Network: t.venue.Network,
		Venue:   t.venue.Name,
		Pair:    t.pair.ID(),
	}

	conn, err := p.resolver.Resolve(ctx, t.venue.Network)
	if err != nil {
		// Connectivity errors degrade one network only; the health loop is
		// the recovery path.
		if !errors.Is(err, context.Canceled) {
			p.logger.Debug("fetch skipped, no connection",
				slog.String("network", t.venue.Network),
				slog.String("venue", t.venue.Name),
				slog.String("pair", t.pair.ID()),
				slog.String("error", err.Error()),
			)
		}
		p.record(ev, start, false, "resolve: "+err.Error())
		return domain.Quote{}, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	q, err := p.fetcher.FetchQuote(fetchCtx, t.venue, t.pair, conn)
	if err != nil {
		p.logger.Warn("quote fetch failed",
			slog.String("network", t.venue.Network),
			slog.String("venue", t.venue.Name),
			slog.String("pair", t.pair.ID()),
			slog.String("error", err.Error()),
		)
		p.record(ev, start, false, err.Error())
		return domain.Quote{}, false
	}

	// Data errors are discarded at this boundary and never enter the cache.
	if err := q.Validate(); err != nil {
		p.logger.Warn("quote rejected",
			slog.String("network", t.venue.Network),
			slog.String("venue", t.venue.Name),
			slog.String("pair", t.pair.ID()),
			slog.String("error", err.Error()),
		)
		p.record(ev, start, false, "data: "+err.Error())
		return domain.Quote{}, false
	}

	p.cache.Put(q)
	p.record(ev, start, true, "")
	return q, true
}

func (p *Poller) record(ev domain.MetricEvent, start time.Time, success bool, reasonText string) {
	if p.metrics == nil {
		return
	}
	ev.Duration = p.now().Sub(start)
	ev.Success = success
	ev.Reason = reasonText
	ev.At = p.now()
	p.metrics.Record(ev)
}

// TaskCount returns the size of the configured fetch matrix.
func (p *Poller) TaskCount() int {
	return len(p.tasks)
}
