// Package metrics implements the metrics collaborator: an in-process
// recorder aggregating per-operation counts and durations, with a snapshot
// for the status API.
package metrics

import (
	"log/slog"
	"sync"
	"time"

	"github.com/calebward/chainarb/internal/domain"
)

// OpStats aggregates the events recorded for one operation name.
type OpStats struct {
	Count       int64         `json:"count"`
	Failures    int64         `json:"failures"`
	TotalTime   time.Duration `json:"total_time_ns"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	LastFailure time.Time     `json:"last_failure,omitempty"`
	LastReason  string        `json:"last_reason,omitempty"`
}

// Recorder implements domain.MetricsRecorder. Every event is also emitted as
// a debug log line so operators can trace individual operations without a
// metrics backend.
type Recorder struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats map[string]*OpStats
}

// NewRecorder creates a Recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{
		logger: logger.With(slog.String("component", "metrics")),
		stats:  make(map[string]*OpStats),
	}
}

// Record aggregates one event. It never blocks on I/O.
func (r *Recorder) Record(ev domain.MetricEvent) {
	r.mu.Lock()
	st, ok := r.stats[ev.Op]
	if !ok {
		st = &OpStats{}
		r.stats[ev.Op] = st
	}
	st.Count++
	st.TotalTime += ev.Duration
	if ev.Success {
		st.LastSuccess = ev.At
	} else {
		st.Failures++
		st.LastFailure = ev.At
		st.LastReason = ev.Reason
	}
	r.mu.Unlock()

	r.logger.Debug("operation recorded",
		slog.String("op", ev.Op),
		slog.String("network", ev.Network),
		slog.String("venue", ev.Venue),
		slog.String("pair", ev.Pair),
		slog.Bool("success", ev.Success),
		slog.Duration("duration", ev.Duration),
		slog.String("reason", ev.Reason),
	)
}

// Snapshot returns a copy of the aggregated stats per operation.
func (r *Recorder) Snapshot() map[string]OpStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OpStats, len(r.stats))
	for op, st := range r.stats {
		out[op] = *st
	}
	return out
}

// Compile-time interface check.
var _ domain.MetricsRecorder = (*Recorder)(nil)
