package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebward/chainarb/internal/cache/memory"
	"github.com/calebward/chainarb/internal/detector"
	"github.com/calebward/chainarb/internal/domain"
)

type fakeCost struct{}

func (fakeCost) Estimate(ctx context.Context, network string) float64 { return 10 }

type fakeHealth struct {
	snaps []domain.HealthSnapshot
}

func (f *fakeHealth) HealthCheckAll(ctx context.Context) []domain.HealthSnapshot { return f.snaps }

func (f *fakeHealth) ConnectionStatus() map[string]bool { return map[string]bool{"ethereum": true} }

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{messages: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	f.messages[channel] = append(f.messages[channel], payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBus) count(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[channel])
}

type fakeQuoteSink struct {
	mu      sync.Mutex
	batches [][]domain.Quote
}

func (f *fakeQuoteSink) InsertBatch(ctx context.Context, quotes []domain.Quote) error {
	f.mu.Lock()
	f.batches = append(f.batches, quotes)
	f.mu.Unlock()
	return nil
}

func (f *fakeQuoteSink) ListBefore(ctx context.Context, before time.Time) ([]domain.Quote, error) {
	return nil, nil
}

func (f *fakeQuoteSink) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type fakeOppSink struct {
	mu   sync.Mutex
	opps []domain.Opportunity
}

func (f *fakeOppSink) Insert(ctx context.Context, opp domain.Opportunity) error {
	f.mu.Lock()
	f.opps = append(f.opps, opp)
	f.mu.Unlock()
	return nil
}

func (f *fakeOppSink) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	return nil, nil
}

func (f *fakeOppSink) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (f *fakeOppSink) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func newTestRunner(t *testing.T, fetcher *fakeFetcher, bus *fakeBus, quoteSink *fakeQuoteSink, oppSink *fakeOppSink) *Runner {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	cache := memory.NewPriceCache(30 * time.Second)

	venues, pairs := testMatrix()
	poller := NewPoller(testPollerConfig(), &fakeResolver{}, fetcher, cache, venues, pairs, nil, logger)

	det := detector.New(detector.Config{
		MinPriceGapPercent: 0.5,
		MinProfitThreshold: 1.0,
		MaxGasCostUSD:      100,
		MaxQuoteAge:        30 * time.Second,
	}, fakeCost{}, logger)

	opts := []RunnerOption{WithSignalBus(bus)}
	if quoteSink != nil {
		opts = append(opts, WithQuoteStore(quoteSink))
	}
	if oppSink != nil {
		opts = append(opts, WithOpportunityStore(oppSink))
	}

	cfg := RunnerConfig{PriceInterval: time.Second, HealthInterval: 30 * time.Second}
	return NewRunner(cfg, poller, det, cache, &fakeHealth{}, nil, logger, opts...)
}

func TestRunCycle_ForwardsQuotesAndOpportunities(t *testing.T) {
	fetcher := &fakeFetcher{
		fail:    map[string]error{},
		invalid: map[string]bool{},
		prices: map[string]float64{
			"ethereum:uniswap:WETH/USDC":  2000,
			"polygon:quickswap:WETH/USDC": 2100, // 5% gap, well past thresholds
		},
	}
	bus := newFakeBus()
	quoteSink := &fakeQuoteSink{}
	oppSink := &fakeOppSink{}
	r := newTestRunner(t, fetcher, bus, quoteSink, oppSink)

	r.runCycle(context.Background())

	require.Len(t, quoteSink.batches, 1)
	assert.Len(t, quoteSink.batches[0], 2)
	assert.Equal(t, 2, bus.count(ChannelQuotes))

	require.Len(t, oppSink.opps, 1)
	opp := oppSink.opps[0]
	assert.True(t, opp.Profitable)
	assert.Equal(t, "ethereum", opp.Buy.Network)
	assert.Equal(t, "polygon", opp.Sell.Network)

	require.Equal(t, 1, bus.count(ChannelOpportunities))
	var published domain.Opportunity
	require.NoError(t, json.Unmarshal(bus.messages[ChannelOpportunities][0], &published))
	assert.Equal(t, opp.ID, published.ID)
}

func TestRunCycle_UnprofitableNotForwarded(t *testing.T) {
	// Both venues at the same price: no gap, nothing to forward.
	fetcher := &fakeFetcher{fail: map[string]error{}, invalid: map[string]bool{}}
	bus := newFakeBus()
	oppSink := &fakeOppSink{}
	r := newTestRunner(t, fetcher, bus, nil, oppSink)

	r.runCycle(context.Background())

	assert.Empty(t, oppSink.opps)
	assert.Zero(t, bus.count(ChannelOpportunities))
	assert.Equal(t, 2, bus.count(ChannelQuotes))
}

func TestRunHealthPass_PublishesSnapshots(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{}, invalid: map[string]bool{}}
	bus := newFakeBus()
	r := newTestRunner(t, fetcher, bus, nil, nil)
	r.health = &fakeHealth{snaps: []domain.HealthSnapshot{
		{Network: "ethereum", Healthy: true, BlockNumber: 100},
		{Network: "polygon", Healthy: false},
	}}

	r.runHealthPass(context.Background())
	assert.Equal(t, 2, bus.count(ChannelHealth))
}

func TestRun_StopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{fail: map[string]error{}, invalid: map[string]bool{}}
	r := newTestRunner(t, fetcher, newFakeBus(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean exit")
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
