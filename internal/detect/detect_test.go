package detect

import (
	"math"
	"testing"
	"time"

	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

func testKey() telemetry.BaselineKey {
	return telemetry.BaselineKey{ServiceID: "svcA", ModelID: "modelX", Metric: telemetry.MetricLatencyMs}
}

// TestZScoreScenarioS1 is scenario S1 from spec §8.
func TestZScoreScenarioS1(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()

	var snap baseline.Snapshot
	for i := 0; i < 100; i++ {
		snap = store.Update(key, 100.0, now)
	}
	// 101st sample: fold in the spike and evaluate against the returned
	// pre-update snapshot, which reflects the 100 samples of 100.0.
	snap = store.Update(key, 500.0, now)

	det := NewZScore(3.0)
	res, ok := det.Evaluate(500.0, snap)
	if !ok {
		t.Fatalf("expected z-score anomaly, snapshot=%+v", snap)
	}
	if math.Abs(snap.Mean-100.0) > 1e-9 {
		t.Fatalf("expected baseline mean 100.0, got %v", snap.Mean)
	}
	if res.Severity != telemetry.SeverityCritical {
		t.Fatalf("expected critical severity, got %v (score %v)", res.Severity, res.Score)
	}
}

// TestIQRScenarioS2 is scenario S2 from spec §8.
func TestIQRScenarioS2(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()

	values := make([]float64, 0, 99)
	values = append(values, 2)
	for len(values) < 99 {
		values = append(values, 1)
	}
	var snap baseline.Snapshot
	for _, v := range values {
		snap = store.Update(key, v, now)
	}
	snap = store.Update(key, 50, now)

	det := NewIQR(1.5)
	if _, ok := det.Evaluate(50, snap); !ok {
		t.Fatalf("expected IQR anomaly on skewed baseline, snapshot=%+v", snap)
	}
}

// TestCUSUMScenarioS5 is scenario S5 from spec §8: a sustained shift that
// z-score might miss fires CUSUM within 10 samples of the shift. The
// detector set is driven directly, without the emitter's dedup, and the
// number of CUSUM firings is counted but not asserted.
func TestCUSUMScenarioS5(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	set := NewSet(Config{CUSUM: CUSUMConfig{Enabled: true, H: 5, SlackFactor: 0.5}}, store)

	for i := 0; i < 200; i++ {
		snap := store.Update(key, 100.0, now)
		set.Evaluate(key, 100.0, snap)
	}

	fireCount := 0
	firstFireAt := -1
	for i := 0; i < 50; i++ {
		snap := store.Update(key, 130.0, now)
		results := set.Evaluate(key, 130.0, snap)
		for _, r := range results {
			if r.Method == telemetry.MethodCUSUM {
				fireCount++
				if firstFireAt == -1 {
					firstFireAt = i
				}
			}
		}
	}

	if firstFireAt == -1 {
		t.Fatal("expected CUSUM to fire at least once after the shift")
	}
	if firstFireAt > 10 {
		t.Fatalf("expected CUSUM to fire within 10 post-shift samples, fired at %d", firstFireAt)
	}
}

func TestMADFallsThroughOnZeroMAD(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	var snap baseline.Snapshot
	for i := 0; i < 40; i++ {
		snap = store.Update(key, 100.0, now)
	}
	det := NewMAD(3.5)
	if _, ok := det.Evaluate(100.0, snap); ok {
		t.Fatal("expected no anomaly when MAD is zero")
	}
}

func TestColdSnapshotNeverFires(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	snap := store.Update(key, 1000000.0, now) // only 1 sample, far below warmup

	set := NewSet(DefaultConfig(), store)
	results := set.Evaluate(key, 1000000.0, snap)
	if len(results) != 0 {
		t.Fatalf("expected no detector to fire on cold snapshot, got %+v", results)
	}
}

func TestMultipleDetectorsCanAllFire(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	var snap baseline.Snapshot
	for i := 0; i < 40; i++ {
		v := 99.0
		if i%2 == 0 {
			v = 101.0
		}
		snap = store.Update(key, v, now)
	}

	set := NewSet(DefaultConfig(), store)
	results := set.Evaluate(key, 100000.0, snap)
	if len(results) < 2 {
		t.Fatalf("expected multiple detectors to fire on an extreme outlier, got %+v", results)
	}
}
