package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebward/chainarb/internal/domain"
)

type fakeSender struct {
	name string
	err  error

	mu    sync.Mutex
	sends []string
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func newTestNotifier(cooldown time.Duration, now time.Time, senders ...Sender) *Notifier {
	n := NewNotifier(senders, cooldown, slog.New(slog.DiscardHandler))
	n.now = func() time.Time { return now }
	return n
}

func TestNotify_CooldownThrottlesRepeats(t *testing.T) {
	base := time.Now()
	s := &fakeSender{name: "telegram"}
	n := newTestNotifier(5*time.Minute, base, s)

	require.NoError(t, n.Notify(context.Background(), "WETH/USDC", "t1", "m1"))
	assert.Equal(t, 1, s.sent())

	// Repeat inside the window is dropped without error.
	n.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, n.Notify(context.Background(), "WETH/USDC", "t2", "m2"))
	assert.Equal(t, 1, s.sent())

	// A different key is unaffected.
	require.NoError(t, n.Notify(context.Background(), "WBTC/USDC", "t3", "m3"))
	assert.Equal(t, 2, s.sent())

	// Past the window the original key fires again.
	n.now = func() time.Time { return base.Add(6 * time.Minute) }
	require.NoError(t, n.Notify(context.Background(), "WETH/USDC", "t4", "m4"))
	assert.Equal(t, 3, s.sent())
}

func TestNotify_ZeroCooldownDisablesThrottle(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := newTestNotifier(0, time.Now(), s)

	for i := 0; i < 3; i++ {
		require.NoError(t, n.Notify(context.Background(), "WETH/USDC", "t", "m"))
	}
	assert.Equal(t, 3, s.sent())
}

func TestNotify_PartialFailureStillDelivers(t *testing.T) {
	failing := &fakeSender{name: "telegram", err: errors.New("bad token")}
	working := &fakeSender{name: "discord"}
	n := newTestNotifier(0, time.Now(), failing, working)

	err := n.Notify(context.Background(), "WETH/USDC", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, 1, working.sent(), "one sender failing must not block the others")
}

func TestNotify_NoSenders(t *testing.T) {
	n := newTestNotifier(0, time.Now())
	assert.NoError(t, n.Notify(context.Background(), "WETH/USDC", "t", "m"))
}

func TestFormatOpportunity(t *testing.T) {
	opp := domain.Opportunity{
		Pair:             "WETH/USDC",
		PriceGapPercent:  2.5,
		Buy:              domain.Quote{Network: "ethereum", Venue: "uniswap", Price: 2000},
		Sell:             domain.Quote{Network: "polygon", Venue: "quickswap", Price: 2050},
		ReferenceSize:    10,
		GrossProfitUSD:   500,
		CostUSD:          50,
		NetProfitUSD:     450,
		NetMarginPercent: 90,
	}

	title, message := FormatOpportunity(opp)
	assert.Equal(t, "Arbitrage: WETH/USDC 2.50% gap", title)
	assert.Contains(t, message, "Buy WETH/USDC on ethereum/uniswap at 2000.000000")
	assert.Contains(t, message, "Sell on polygon/quickswap at 2050.000000")
	assert.Contains(t, message, "net $450.00 (90.0% margin)")
}
