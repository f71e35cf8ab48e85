package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/backoff"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

func testAnomaly() telemetry.AnomalyEvent {
	return telemetry.AnomalyEvent{
		AnomalyID:     uuid.New(),
		Timestamp:     time.Now().UTC(),
		Severity:      telemetry.SeverityCritical,
		AnomalyType:   telemetry.AnomalyLatencySpike,
		Method:        telemetry.MethodZScore,
		Key:           telemetry.BaselineKey{ServiceID: "svcA", ModelID: "modelX", Metric: telemetry.MetricLatencyMs},
		Score:         0.9,
		Observed:      500,
		Baseline:      telemetry.BaselineSummary{Mean: 100, StdDev: 10, Count: 100},
		SourceEventID: uuid.New(),
	}
}

func TestStorageWriteOneOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, time.Second)
	if outcome := s.WriteOne(context.Background(), testAnomaly()); outcome != OK {
		t.Fatalf("expected OK, got %v", outcome)
	}
}

func TestStorageWriteOneTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, time.Second)
	if outcome := s.WriteOne(context.Background(), testAnomaly()); outcome != Transient {
		t.Fatalf("expected Transient, got %v", outcome)
	}
}

func TestStorageWriteOnePermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewStorage(srv.URL, time.Second)
	if outcome := s.WriteOne(context.Background(), testAnomaly()); outcome != Permanent {
		t.Fatalf("expected Permanent, got %v", outcome)
	}
}

func TestTransportSignsBodyAndRoutesBySeverity(t *testing.T) {
	var gotPath, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTransport(srv.URL, []byte("secret"), time.Second)
	outcome := tr.WriteOne(context.Background(), testAnomaly())
	if outcome != OK {
		t.Fatalf("expected OK, got %v", outcome)
	}
	if gotPath != "/alerts.critical" {
		t.Fatalf("expected routing to alerts.critical, got %q", gotPath)
	}
	if gotSig == "" {
		t.Fatal("expected X-Signature header to be set")
	}
}

// fakeSink lets tests script a sequence of outcomes.
type fakeSink struct {
	outcomes []Outcome
	calls    int
}

func (f *fakeSink) Name() string { return "fake" }
func (f *fakeSink) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	o := f.outcomes[f.calls%len(f.outcomes)]
	f.calls++
	return o
}

func TestRetryingSucceedsAfterTransient(t *testing.T) {
	fake := &fakeSink{outcomes: []Outcome{Transient, Transient, OK}}
	r := NewRetrying(fake, backoff.Policy{Base: time.Millisecond, Cap: 10 * time.Millisecond}, 5, time.Second)

	outcome := r.WriteOne(context.Background(), testAnomaly())
	if outcome != OK {
		t.Fatalf("expected eventual OK, got %v", outcome)
	}
	if fake.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fake.calls)
	}
}

func TestRetryingGivesUpOnPermanent(t *testing.T) {
	fake := &fakeSink{outcomes: []Outcome{Permanent}}
	r := NewRetrying(fake, backoff.Policy{Base: time.Millisecond, Cap: 10 * time.Millisecond}, 5, time.Second)

	outcome := r.WriteOne(context.Background(), testAnomaly())
	if outcome != Permanent {
		t.Fatalf("expected Permanent, got %v", outcome)
	}
	if fake.calls != 1 {
		t.Fatalf("expected no retry on permanent failure, got %d calls", fake.calls)
	}
}

func TestRetryingExhaustsAttempts(t *testing.T) {
	fake := &fakeSink{outcomes: []Outcome{Transient}}
	r := NewRetrying(fake, backoff.Policy{Base: time.Millisecond, Cap: 5 * time.Millisecond}, 3, time.Second)

	outcome := r.WriteOne(context.Background(), testAnomaly())
	if outcome != Permanent {
		t.Fatalf("expected Permanent after exhausting attempts, got %v", outcome)
	}
	if fake.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", fake.calls)
	}
}

func TestCountersSinkAlwaysOK(t *testing.T) {
	c := NewCounters()
	if outcome := c.WriteOne(context.Background(), testAnomaly()); outcome != OK {
		t.Fatalf("expected OK, got %v", outcome)
	}
}
