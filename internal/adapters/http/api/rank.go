package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/tourney/internal/app"
)

// RankDependencies defines the interface for player lookups.
type RankDependencies interface {
	Rank(ctx context.Context, playerID string) (Entry, error)
	PlayerRating(ctx context.Context, playerID, format string) (service.PlayerRating, error)
}

// RankHandler handles player rank and rating requests.
type RankHandler struct {
	deps RankDependencies
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies) *RankHandler {
	return &RankHandler{deps: deps}
}

// HandleGetRank handles GET /players/{id}/rank.
func (h *RankHandler) HandleGetRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	entry, err := h.deps.Rank(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleGetRating handles GET /players/{id}/rating?format=F.
func (h *RankHandler) HandleGetRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rating"
	pr, err := h.deps.PlayerRating(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, pr)
}
