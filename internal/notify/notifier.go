// Package notify delivers opportunity alerts to operator channels. Alerts are
// dispatched to every registered sender (Telegram, Discord) and throttled per
// pair so a persistent price gap does not flood the channel every cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender is the interface each alert channel implements.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a short identifier for the sender, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to one or more Senders with a per-key cooldown.
// An alert for a key inside its cooldown window is dropped silently.
type Notifier struct {
	senders  []Sender
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewNotifier creates a Notifier. A zero cooldown disables throttling.
func NewNotifier(senders []Sender, cooldown time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		senders:  senders,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notifier")),
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Notify sends an alert keyed for cooldown purposes, typically by pair. The
// first alert for a key always goes out; repeats inside the cooldown window
// are dropped.
func (n *Notifier) Notify(ctx context.Context, key, title, message string) error {
	if !n.shouldSend(key) {
		n.logger.DebugContext(ctx, "alert throttled", slog.String("key", key))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) shouldSend(key string) bool {
	if n.cooldown <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.lastSent[key]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[key] = now
	return true
}

// dispatch delivers to every sender. A single sender failure does not stop
// delivery to the remaining senders; failures are combined into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
