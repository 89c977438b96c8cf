package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "framestep API",
		Version:     "v1",
		Description: "Frame-budgeted generation stepping: live statistics and recorded pass telemetry",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/stats", []string{"GET"}, "Statistics published by the last frame"},
			{"/api/v1/generation", []string{"GET"}, "Text rendering of the committed generation"},
			{"/api/v1/runs", []string{"GET"}, "Recorded runs, newest first. Accepts ?limit= and ?offset="},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run with pass summary and recent samples. Accepts ?samples="},
		},
	})
}
