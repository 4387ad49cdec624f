package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Whooptido-App/ASR-Captions/internal/config"
	"github.com/Whooptido-App/ASR-Captions/internal/engine"
	"github.com/Whooptido-App/ASR-Captions/internal/metrics"
	"github.com/Whooptido-App/ASR-Captions/internal/session"
)

// Prometheus collectors register globally, so all server tests share one
// Metrics instance.
var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func newTestServer(t *testing.T) (*HTTPServer, *session.Manager) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scratchDir := t.TempDir()

	registry := engine.NewRegistry(logger)
	invoker, err := engine.NewInvoker(engine.Config{
		BinaryPath: "/usr/local/bin/whisper-cli",
		ModelsDir:  t.TempDir(),
		ScratchDir: scratchDir,
		MaxThreads: 2,
	}, registry, logger)
	if err != nil {
		t.Fatalf("NewInvoker failed: %v", err)
	}

	mgr, err := session.NewManager(session.Config{
		ScratchDir:   scratchDir,
		DefaultModel: "base",
	}, invoker, logger)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	appConfig := &config.Config{
		Engine: config.EngineConfig{
			BinaryPath:      "/usr/local/bin/whisper-cli",
			ModelsDir:       "./models",
			DefaultModel:    "base",
			DefaultLanguage: "auto",
			MaxThreads:      2,
		},
		Session: config.SessionConfig{ScratchDir: scratchDir},
		Logging: config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"},
	}

	httpServer := NewHTTPServer(config.HTTPConfig{Port: 8080, Address: "127.0.0.1", Enabled: true},
		logger, appConfig, mgr, sharedMetrics())

	return httpServer, mgr
}

func doRequest(t *testing.T, h *HTTPServer, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	recorder := httptest.NewRecorder()
	h.server.Handler.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	httpServer, _ := newTestServer(t)

	recorder := doRequest(t, httpServer, http.MethodGet, "/health")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}

	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestHealthMethodNotAllowed(t *testing.T) {
	httpServer, _ := newTestServer(t)

	recorder := doRequest(t, httpServer, http.MethodPost, "/health")
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", recorder.Code)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	httpServer, mgr := newTestServer(t)

	recorder := doRequest(t, httpServer, http.MethodGet, "/sessions")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var body struct {
		TotalSessions int `json:"total_sessions"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body.TotalSessions != 0 {
		t.Errorf("Expected 0 sessions, got %d", body.TotalSessions)
	}

	if _, _, err := mgr.CreateChunked(session.InitParams{ID: "s1"}); err != nil {
		t.Fatalf("CreateChunked failed: %v", err)
	}

	recorder = doRequest(t, httpServer, http.MethodGet, "/sessions")
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body.TotalSessions != 1 {
		t.Errorf("Expected 1 session, got %d", body.TotalSessions)
	}
}

func TestSessionDetailEndpoint(t *testing.T) {
	httpServer, mgr := newTestServer(t)

	if _, _, err := mgr.CreateChunked(session.InitParams{ID: "s1"}); err != nil {
		t.Fatalf("CreateChunked failed: %v", err)
	}

	recorder := doRequest(t, httpServer, http.MethodGet, "/sessions/s1")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var info session.Info
	if err := json.Unmarshal(recorder.Body.Bytes(), &info); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if info.ID != "s1" {
		t.Errorf("Expected session s1, got %s", info.ID)
	}

	recorder = doRequest(t, httpServer, http.MethodGet, "/sessions/ghost")
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", recorder.Code)
	}
}

func TestConfigEndpoint(t *testing.T) {
	httpServer, _ := newTestServer(t)

	recorder := doRequest(t, httpServer, http.MethodGet, "/config")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var body map[string]map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["engine"]["default_model"] != "base" {
		t.Errorf("Unexpected engine config: %v", body["engine"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	httpServer, _ := newTestServer(t)

	recorder := doRequest(t, httpServer, http.MethodGet, "/stats")
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if _, ok := body["engine"]; !ok {
		t.Error("Expected engine stats in response")
	}
}
