package handler

import (
	"net/http"

	"github.com/calebward/chainarb/internal/domain"
)

// ConnectionReporter is the slice of the connection manager the status
// endpoint needs.
type ConnectionReporter interface {
	ConnectionStatus() map[string]bool
	Networks() []domain.Network
}

// QuoteCounter reports the number of live cache entries.
type QuoteCounter interface {
	Len() int
}

// StatusHandler serves per-network connection status and cache occupancy.
type StatusHandler struct {
	conns ConnectionReporter
	cache QuoteCounter
	mode  string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(conns ConnectionReporter, cache QuoteCounter, mode string) *StatusHandler {
	return &StatusHandler{conns: conns, cache: cache, mode: mode}
}

// Status reports connection health per network and the live quote count.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	type networkStatus struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Connected bool   `json:"connected"`
	}

	connected := h.conns.ConnectionStatus()
	networks := make([]networkStatus, 0)
	for _, n := range h.conns.Networks() {
		networks = append(networks, networkStatus{
			ID:        n.ID,
			Name:      n.Name,
			Connected: connected[n.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":         h.mode,
		"networks":     networks,
		"cached_quotes": h.cache.Len(),
	})
}
