package server

import (
	"io"
	"net/http"

	"github.com/me/framestep/internal/scheduler"
)

type statsResponse struct {
	scheduler.Stats
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondUnavailable(w, reqID, "live simulation")
		return
	}
	respondOK(w, reqID, statsResponse{Stats: s.live.Stats(), RunID: s.runID})
}

// handleGeneration writes the committed generation as plain text, one row
// per line.
func (s *Server) handleGeneration(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.live == nil {
		respondUnavailable(w, reqID, "live simulation")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, s.live.RenderCommitted())
}
