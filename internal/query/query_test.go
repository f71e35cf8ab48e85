package query

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

type fakePipeline struct{}

func (fakePipeline) WorkerCount() int          { return 2 }
func (fakePipeline) QueueDepth(worker int) int { return 0 }

func newTestHandlers() *Handlers {
	store := baseline.New(baseline.DefaultConfig())
	key := telemetry.BaselineKey{ServiceID: "svcA", ModelID: "modelX", Metric: telemetry.MetricLatencyMs}
	for i := 0; i < 20; i++ {
		store.Update(key, float64(100+i), time.Now().UTC())
	}
	return &Handlers{
		Store:    store,
		Log:      alert.NewLog(100),
		Pipeline: fakePipeline{},
		Ready:    func() bool { return true },
	}
}

func TestHealthLiveAlwaysOK(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthReadyReflectsReadyFunc(t *testing.T) {
	h := newTestHandlers()
	h.Ready = func() bool { return false }

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	h.HealthReady(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAnomaliesEmptyLog(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies", nil)
	rec := httptest.NewRecorder()
	h.Anomalies(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAnomaliesReturnsLoggedEntries(t *testing.T) {
	h := newTestHandlers()
	h.Log.Append(telemetry.AnomalyEvent{
		AnomalyID:   uuid.New(),
		Timestamp:   time.Now().UTC(),
		Severity:    telemetry.SeverityCritical,
		AnomalyType: telemetry.AnomalyLatencySpike,
		Method:      telemetry.MethodZScore,
		Key:         telemetry.BaselineKey{ServiceID: "svcA", ModelID: "modelX", Metric: telemetry.MetricLatencyMs},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?service=svcA", nil)
	rec := httptest.NewRecorder()
	h.Anomalies(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected a non-empty JSON body")
	}
}

func TestAnomaliesRejectsBadSince(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/anomalies?since=not-a-time", nil)
	rec := httptest.NewRecorder()
	h.Anomalies(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTelemetryRequiresServiceModelMetric(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil)
	rec := httptest.NewRecorder()
	h.Telemetry(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTelemetryRejectsUnknownMetric(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?service=svcA&model=modelX&metric=bogus", nil)
	rec := httptest.NewRecorder()
	h.Telemetry(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTelemetryAggregatesKnownKey(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?service=svcA&model=modelX&metric=latency_ms&agg=p95", nil)
	rec := httptest.NewRecorder()
	h.Telemetry(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTelemetryUnknownKeyReturnsEmptyBuckets(t *testing.T) {
	h := newTestHandlers()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?service=nope&model=nope&metric=latency_ms", nil)
	rec := httptest.NewRecorder()
	h.Telemetry(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
