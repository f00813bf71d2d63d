package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/calebward/chainarb/internal/domain"
)

// Bridge consumes profitable opportunities from the signal bus and turns them
// into operator alerts.
type Bridge struct {
	bus      domain.SignalBus
	channel  string
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge reading from the given bus channel.
func NewBridge(bus domain.SignalBus, channel string, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		channel:  channel,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run subscribes to the opportunity channel and alerts on every message until
// the context is cancelled. Malformed payloads are logged and skipped.
func (b *Bridge) Run(ctx context.Context) error {
	msgs, err := b.bus.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("alert bridge started", slog.String("channel", b.channel))

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("alert bridge stopped")
			return ctx.Err()
		case payload, ok := <-msgs:
			if !ok {
				b.logger.Info("alert bridge channel closed")
				return nil
			}

			var opp domain.Opportunity
			if err := json.Unmarshal(payload, &opp); err != nil {
				b.logger.Warn("malformed opportunity payload", slog.String("error", err.Error()))
				continue
			}

			title, message := FormatOpportunity(opp)
			if err := b.notifier.Notify(ctx, opp.Pair, title, message); err != nil {
				b.logger.Error("alert delivery failed",
					slog.String("pair", opp.Pair),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// FormatOpportunity renders one opportunity as an alert title and body.
func FormatOpportunity(opp domain.Opportunity) (title, message string) {
	title = fmt.Sprintf("Arbitrage: %s %.2f%% gap", opp.Pair, opp.PriceGapPercent)
	message = fmt.Sprintf(
		"Buy %s on %s/%s at %.6f\nSell on %s/%s at %.6f\nSize %.4f, gross $%.2f, cost $%.2f, net $%.2f (%.1f%% margin)",
		opp.Pair,
		opp.Buy.Network, opp.Buy.Venue, opp.Buy.Price,
		opp.Sell.Network, opp.Sell.Venue, opp.Sell.Price,
		opp.ReferenceSize, opp.GrossProfitUSD, opp.CostUSD, opp.NetProfitUSD, opp.NetMarginPercent,
	)
	return title, message
}
