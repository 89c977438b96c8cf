package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/me/framestep/internal/config"
	"github.com/me/framestep/internal/scheduler"
	"github.com/me/framestep/internal/store"
	"github.com/me/framestep/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(opts ...Option) *Server {
	return New(config.DefaultServerConfig(), testLogger(), opts...)
}

// testStore returns a migrated in-memory store holding run_1 (three samples)
// and run_2 (none).
func testStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run_1", "run_2"} {
		run := &model.Run{
			ID:        id,
			Workload:  "life",
			Width:     8,
			Height:    8,
			Rule:      "B3/S23",
			TargetFPS: 60,
			StartedAt: start.Add(time.Duration(i) * time.Minute),
		}
		if err := st.CreateRun(ctx, run); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	var samples []model.PassSample
	for g := int64(1); g <= 3; g++ {
		samples = append(samples, model.PassSample{
			RunID:         "run_1",
			Generation:    g,
			Duration:      time.Duration(g) * time.Millisecond,
			FramesSpanned: 1,
			Units:         64,
			Strategy:      model.StrategyFull,
			RecordedAt:    start.Add(time.Duration(g) * time.Second),
		})
	}
	if err := st.RecordPasses(ctx, samples); err != nil {
		t.Fatalf("record passes: %v", err)
	}
	return st
}

type fakeLive struct {
	stats scheduler.Stats
	text  string
}

func (f fakeLive) Stats() scheduler.Stats  { return f.stats }
func (f fakeLive) RenderCommitted() string { return f.text }

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, path string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	return do(t, srv, path, http.StatusOK)
}

func TestDiscovery(t *testing.T) {
	srv := testServer()
	env := doGet(t, srv, "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Errorf("request_id = %q, want req_ prefix", env.RequestID)
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "framestep API" {
		t.Errorf("name = %q, want framestep API", data.Name)
	}
	if len(data.Endpoints) != 5 {
		t.Errorf("endpoints count = %d, want 5", len(data.Endpoints))
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer()
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if got := w.Header().Get("X-Request-ID"); got == "" || got != env.RequestID {
		t.Errorf("X-Request-ID = %q, body request_id = %q", got, env.RequestID)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		wantLoop  string
		wantStore string
	}{
		{"bare", nil, "not_running", "unavailable"},
		{"live", []Option{WithLive(fakeLive{})}, "running", "unavailable"},
		{"store", []Option{WithStore(testStore(t))}, "not_running", "sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := doGet(t, testServer(tt.opts...), "/api/v1/health")
			var data struct {
				Status  string `json:"status"`
				Version string `json:"version"`
				Loop    string `json:"loop"`
				Store   string `json:"store"`
			}
			json.Unmarshal(env.Data, &data)
			if data.Status != "healthy" || data.Version != Version {
				t.Errorf("status=%q version=%q", data.Status, data.Version)
			}
			if data.Loop != tt.wantLoop || data.Store != tt.wantStore {
				t.Errorf("loop=%q store=%q, want %q %q", data.Loop, data.Store, tt.wantLoop, tt.wantStore)
			}
		})
	}
}

func TestStats(t *testing.T) {
	live := fakeLive{stats: scheduler.Stats{
		Frames:           12,
		Generation:       3,
		State:            model.PassStateInProgress,
		Strategy:         model.StrategyIncremental,
		Visited:          40,
		Total:            64,
		LastPassDuration: 5 * time.Millisecond,
	}}
	srv := testServer(WithLive(live), WithRunID("run_live"))
	env := doGet(t, srv, "/api/v1/stats")

	var data struct {
		Frames     int64  `json:"frames"`
		Generation int64  `json:"generation"`
		State      string `json:"state"`
		Strategy   string `json:"strategy"`
		Visited    int    `json:"visited"`
		Total      int    `json:"total"`
		LastPassNS int64  `json:"last_pass_ns"`
		RunID      string `json:"run_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if data.Frames != 12 || data.Generation != 3 || data.Visited != 40 || data.Total != 64 {
		t.Errorf("stats = %+v", data)
	}
	if data.State != "IN_PROGRESS" || data.Strategy != "INCREMENTAL" {
		t.Errorf("state=%q strategy=%q", data.State, data.Strategy)
	}
	if data.LastPassNS != int64(5*time.Millisecond) {
		t.Errorf("last_pass_ns = %d, want %d", data.LastPassNS, int64(5*time.Millisecond))
	}
	if data.RunID != "run_live" {
		t.Errorf("run_id = %q, want run_live", data.RunID)
	}
}

func TestGeneration(t *testing.T) {
	srv := testServer(WithLive(fakeLive{text: ".#.\n.#.\n.#.\n"}))
	req := httptest.NewRequest("GET", "/api/v1/generation", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if w.Body.String() != ".#.\n.#.\n.#.\n" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestUnavailableWithoutDependencies(t *testing.T) {
	srv := testServer()
	for _, path := range []string{"/api/v1/stats", "/api/v1/generation", "/api/v1/runs/", "/api/v1/runs/run_1"} {
		env := do(t, srv, path, http.StatusServiceUnavailable)
		if env.Status != "error" || env.Error == nil || env.Error.Code != model.ErrUnavailable {
			t.Errorf("GET %s: status=%q error=%v", path, env.Status, env.Error)
		}
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := doGet(t, srv, "/api/v1/runs/")
	if env.Pagination == nil {
		t.Fatal("expected pagination")
	}
	if env.Pagination.Total != 2 || env.Pagination.HasMore {
		t.Errorf("pagination = %+v, want total 2 without more", env.Pagination)
	}

	var runs []model.Run
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 2 || runs[0].ID != "run_2" || runs[1].ID != "run_1" {
		t.Errorf("runs = %+v, want run_2 then run_1", runs)
	}
}

func TestListRuns_Pagination(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := doGet(t, srv, "/api/v1/runs/?limit=1&offset=0")
	if env.Pagination.Limit != 1 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v, want limit 1 with more", env.Pagination)
	}
	var runs []model.Run
	json.Unmarshal(env.Data, &runs)
	if len(runs) != 1 || runs[0].ID != "run_2" {
		t.Errorf("first page = %+v, want [run_2]", runs)
	}
}

func TestListRuns_InvalidQuery(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := do(t, srv, "/api/v1/runs/?limit=ten&offset=x", http.StatusBadRequest)
	if env.Error == nil || env.Error.Code != model.ErrValidation {
		t.Fatalf("error = %v, want VALIDATION_ERROR", env.Error)
	}
	if len(env.Error.Details) != 2 {
		t.Errorf("details = %+v, want limit and offset", env.Error.Details)
	}
}

func TestGetRun(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := doGet(t, srv, "/api/v1/runs/run_1?samples=2")

	var data struct {
		ID      string             `json:"id"`
		Rule    string             `json:"rule"`
		Summary model.PassSummary  `json:"summary"`
		Samples []model.PassSample `json:"samples"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if data.ID != "run_1" || data.Rule != "B3/S23" {
		t.Errorf("run = %q %q", data.ID, data.Rule)
	}
	if data.Summary.Count != 3 || data.Summary.Mean != 2*time.Millisecond || data.Summary.Max != 3*time.Millisecond {
		t.Errorf("summary = %+v", data.Summary)
	}
	if len(data.Samples) != 2 || data.Samples[0].Generation != 3 {
		t.Errorf("samples = %+v, want generations 3 and 2", data.Samples)
	}
}

func TestGetRun_NoSamples(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := doGet(t, srv, "/api/v1/runs/run_2")

	var data struct {
		Summary model.PassSummary  `json:"summary"`
		Samples []model.PassSample `json:"samples"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Summary.Count != 0 {
		t.Errorf("summary count = %d, want 0", data.Summary.Count)
	}
	if data.Samples == nil || len(data.Samples) != 0 {
		t.Errorf("samples = %v, want empty list", data.Samples)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	env := do(t, srv, "/api/v1/runs/run_missing", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %v, want NOT_FOUND", env.Error)
	}
}

func TestGetRun_InvalidSamples(t *testing.T) {
	srv := testServer(WithStore(testStore(t)))
	do(t, srv, "/api/v1/runs/run_1?samples=-1", http.StatusBadRequest)
}
