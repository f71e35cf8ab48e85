package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/sink"
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

func TestFingerprintStableAcrossEquivalentEvents(t *testing.T) {
	a := testAnomaly()
	b := testAnomaly()
	b.AnomalyID = uuid.New() // differs, but fingerprint must not depend on it
	b.SourceEventID = uuid.New()

	if ComputeFingerprint(a) != ComputeFingerprint(b) {
		t.Fatal("expected equal fingerprints for equivalent (service,model,type,method,severity)")
	}
}

func TestFingerprintDiffersOnSeverity(t *testing.T) {
	a := testAnomaly()
	b := testAnomaly()
	b.Severity = telemetry.SeverityInfo

	if ComputeFingerprint(a) == ComputeFingerprint(b) {
		t.Fatal("expected differing fingerprints for differing severity")
	}
}

// TestDedupScenarioS4 is scenario S4 from spec §8.
func TestDedupScenarioS4(t *testing.T) {
	d := NewDedup(5 * time.Minute)
	ev := testAnomaly()
	fp := ComputeFingerprint(ev)
	now := time.Now().UTC()

	admitted := 0
	for i := 0; i < 10; i++ {
		if d.Admit(fp, now.Add(time.Duration(i)*time.Second)) {
			admitted++
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly 1 admitted alert, got %d", admitted)
	}
	if got := d.SuppressedCount(fp); got != 9 {
		t.Fatalf("expected suppression counter 9, got %d", got)
	}
}

func TestDedupAdmitsAfterWindowElapses(t *testing.T) {
	d := NewDedup(time.Minute)
	ev := testAnomaly()
	fp := ComputeFingerprint(ev)
	now := time.Now().UTC()

	if !d.Admit(fp, now) {
		t.Fatal("expected first alert admitted")
	}
	if d.Admit(fp, now.Add(30*time.Second)) {
		t.Fatal("expected suppression within window")
	}
	if !d.Admit(fp, now.Add(90*time.Second)) {
		t.Fatal("expected admission after window elapses")
	}
}

type recordingSink struct {
	name    string
	outcome sink.Outcome
	calls   int
}

func (r *recordingSink) Name() string { return r.name }
func (r *recordingSink) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) sink.Outcome {
	r.calls++
	return r.outcome
}

func TestEmitterForwardsToAllSinksAndDedups(t *testing.T) {
	storage := &recordingSink{name: "storage", outcome: sink.Transient}
	transport := &recordingSink{name: "transport", outcome: sink.OK}
	counters := &recordingSink{name: "counters", outcome: sink.OK}

	emitter := NewEmitter(NewDedup(time.Minute), NewLog(100), storage, transport, counters)
	ev := testAnomaly()
	now := time.Now().UTC()

	if !emitter.Emit(context.Background(), ev, now) {
		t.Fatal("expected first emit to be forwarded")
	}
	if storage.calls != 1 || transport.calls != 1 || counters.calls != 1 {
		t.Fatalf("expected all three sinks called once, got %+v %+v %+v", storage, transport, counters)
	}

	// A storage failure must not have prevented transport/counters.
	if transport.calls != 1 {
		t.Fatal("transport must still be called despite storage transient failure")
	}

	if emitter.Emit(context.Background(), ev, now.Add(time.Second)) {
		t.Fatal("expected second identical emit to be suppressed by dedup")
	}
	if storage.calls != 1 {
		t.Fatal("expected suppressed alert to not reach sinks")
	}

	if emitter.Log().Len() != 1 {
		t.Fatalf("expected exactly one log entry, got %d", emitter.Log().Len())
	}
}

func TestLogQueryFiltersAndPaginates(t *testing.T) {
	log := NewLog(0)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ev := testAnomaly()
		ev.Timestamp = now.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			ev.Severity = telemetry.SeverityInfo
		}
		log.Append(ev)
	}

	result := log.Query(Query{Severity: telemetry.SeverityCritical, Limit: 10})
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 critical items, got %d", len(result.Items))
	}

	page1 := log.Query(Query{Limit: 2})
	if len(page1.Items) != 2 || !page1.HasMore {
		t.Fatalf("expected first page of 2 with more available, got %+v", page1)
	}
	page2 := log.Query(Query{Limit: 2, Cursor: page1.NextCursor})
	if len(page2.Items) != 2 {
		t.Fatalf("expected second page of 2, got %+v", page2)
	}
}
