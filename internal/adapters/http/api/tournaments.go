package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/tourney/internal/app"
	"github.com/okian/tourney/internal/domain/model"
)

type joinRequest struct {
	PlayerID string `json:"player_id"`
}

type roundResponse struct {
	Tournament model.Tournament `json:"tournament"`
	Matches    []model.Match    `json:"matches"`
}

func (s *Server) handleCreateTournament(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_tournament"
	var in service.CreateTournamentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	t, err := s.deps.CreateTournament(r.Context(), in)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	w.Header().Set("Location", "/tournaments/"+t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.GetTournament(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap("api.get_tournament", err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleJoinTournament(w http.ResponseWriter, r *http.Request) {
	const op = "api.join_tournament"
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	t, err := s.deps.JoinTournament(r.Context(), chi.URLParam(r, "id"), req.PlayerID)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStartTournament(w http.ResponseWriter, r *http.Request) {
	t, ms, err := s.deps.StartTournament(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap("api.start_tournament", err))
		return
	}
	writeJSON(w, http.StatusOK, roundResponse{Tournament: t, Matches: ms})
}

func (s *Server) handleNextRound(w http.ResponseWriter, r *http.Request) {
	t, ms, err := s.deps.GenerateNextRound(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap("api.next_round", err))
		return
	}
	writeJSON(w, http.StatusCreated, roundResponse{Tournament: t, Matches: ms})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_settings"
	var patch model.SettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	t, err := s.deps.UpdateSettings(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_matches"
	round := 0
	if raw := r.URL.Query().Get("round"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, r, NewKind(op, ErrBadRequest))
			return
		}
		round = v
	}
	ms, err := s.deps.ListMatches(r.Context(), chi.URLParam(r, "id"), round)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	if ms == nil {
		ms = []model.Match{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.deps.Standings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap("api.standings", err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Analytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, Wrap("api.analytics", err))
		return
	}
	writeJSON(w, http.StatusOK, a)
}
