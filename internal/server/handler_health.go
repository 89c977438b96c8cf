package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Loop      string `json:"loop"`
	Store     string `json:"store"`
	RunID     string `json:"run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Loop:      "not_running",
		Store:     "unavailable",
		RunID:     s.runID,
	}
	if s.live != nil {
		resp.Loop = "running"
	}
	if s.store != nil {
		resp.Store = "sqlite"
	}
	respondOK(w, reqID, resp)
}
