package handler

import (
	"net/http"

	"github.com/calebward/chainarb/internal/metrics"
)

// StatsSource exposes the aggregated per-operation counters.
type StatsSource interface {
	Snapshot() map[string]metrics.OpStats
}

// MetricsHandler serves the in-process metrics snapshot.
type MetricsHandler struct {
	stats StatsSource
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(stats StatsSource) *MetricsHandler {
	return &MetricsHandler{stats: stats}
}

// Snapshot returns the current per-operation counters.
// GET /api/metrics
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}
