package api

import (
	"context"
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// RetryDependencies re-enqueues dead-lettered rating jobs.
type RetryDependencies interface {
	RetryFailedRatings(ctx context.Context) int
}

// StatsHandler handles stats and rating administration requests.
type StatsHandler struct {
	statsProvider StatsProvider
	retry         RetryDependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider, retry RetryDependencies) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, retry: retry}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

type retryResponse struct {
	Resubmitted int `json:"resubmitted"`
}

// HandleRetryRatings handles POST /admin/ratings/retry.
func (h *StatsHandler) HandleRetryRatings(w http.ResponseWriter, r *http.Request) {
	n := h.retry.RetryFailedRatings(r.Context())
	writeJSON(w, http.StatusOK, retryResponse{Resubmitted: n})
}
