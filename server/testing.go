package server

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/llm-sentinel/sentinel/config"
	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/detect"
	"github.com/llm-sentinel/sentinel/internal/ingest"
	"github.com/llm-sentinel/sentinel/internal/sink"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// The file provides utilities for integration testing:
// - `server.NewTestServerWithRecorder(cfg, logWriter, registry, deps)`: Creates a server for fast integration tests
// - `server.NewTestServer(cfg, logWriter, registry, deps)`: Creates a full HTTP test server for end-to-end testing
// - `srv.ServeHTTP(responseRecorder, request)`: Direct testing with httptest.ResponseRecorder
//
// Passing nil deps wires a minimal real pipeline (in-memory store, all
// detectors, counters-only sink) so route tests don't need to build one by
// hand.

// TestServer wraps a Server for testing purposes.
type TestServer struct {
	*Server
	HTTPServer *httptest.Server
}

// NewTestDeps builds a minimal, fully wired Deps suitable for route tests.
func NewTestDeps() *Deps {
	store := baseline.New(baseline.DefaultConfig())
	detectors := detect.NewSet(detect.DefaultConfig(), store)
	counters := sink.NewCounters()
	dedup := alert.NewDedup(0)
	alertLog := alert.NewLog(1000)
	emitter := alert.NewEmitter(dedup, alertLog, nil, nil, counters)

	validator := telemetry.NewValidator(telemetry.DefaultValidatorConfig())
	sanitizer := telemetry.NewSanitizer(nil)
	pipeline := ingest.New(ingest.DefaultConfig(1), validator, sanitizer, store, detectors, emitter)

	return &Deps{
		Store:    store,
		Pipeline: pipeline,
		Emitter:  emitter,
		Sinks:    map[string]*sink.Chaos{"counters": sink.NewChaos(counters)},
		Ready:    func() bool { return true },
	}
}

// NewTestServer creates a new test server with the given configuration.
// This is the recommended way to create servers for integration testing.
func NewTestServer(cfg *config.Config, logWriter io.Writer, reg *prometheus.Registry, deps *Deps) *TestServer {
	if reg == nil {
		reg = metrics.InitMetrics()
	}
	if deps == nil {
		deps = NewTestDeps()
	}

	server := New(cfg, logWriter, reg, deps)
	httpServer := httptest.NewServer(server.router)

	return &TestServer{
		Server:     server,
		HTTPServer: httpServer,
	}
}

// NewTestServerWithRecorder creates a test server that uses httptest.ResponseRecorder
// instead of a real HTTP server. This is faster for unit-style integration tests.
func NewTestServerWithRecorder(cfg *config.Config, logWriter io.Writer, reg *prometheus.Registry, deps *Deps) *Server {
	if reg == nil {
		reg = metrics.InitMetrics()
	}
	if deps == nil {
		deps = NewTestDeps()
	}

	return New(cfg, logWriter, reg, deps)
}

// ServeHTTP allows the server to be used directly with httptest.ResponseRecorder.
func (s *Server) ServeHTTP(recorder *httptest.ResponseRecorder, request *http.Request) {
	s.router.ServeHTTP(recorder, request)
}
