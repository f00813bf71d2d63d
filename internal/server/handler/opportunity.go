package handler

import (
	"log/slog"
	"net/http"

	"github.com/calebward/chainarb/internal/domain"
)

// OpportunityHandler serves recently detected opportunities from the store.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "opportunities")),
	}
}

// ListRecent returns the most recently detected opportunities, newest first.
// GET /api/opportunities/recent?limit=N
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opps, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}
