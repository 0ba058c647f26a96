package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/tourney/internal/app"
)

// handleReportResult handles POST /matches/{id}/result. The rating update
// runs asynchronously; the response carries the completed match.
func (s *Server) handleReportResult(w http.ResponseWriter, r *http.Request) {
	const op = "api.report_result"
	var in service.ReportInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := s.deps.ReportResult(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, m)
}
