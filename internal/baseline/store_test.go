package baseline

import (
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

func testKey() telemetry.BaselineKey {
	return telemetry.BaselineKey{ServiceID: "svcA", ModelID: "modelX", Metric: telemetry.MetricLatencyMs}
}

// TestUpdateReturnsPreUpdateSnapshot is property test 1: the snapshot
// handed back never includes the sample just folded in.
func TestUpdateReturnsPreUpdateSnapshot(t *testing.T) {
	s := New(DefaultConfig())
	key := testKey()
	now := time.Now().UTC()

	first := s.Update(key, 100, now)
	if first.Count != 0 {
		t.Fatalf("expected empty baseline on first update, got count %d", first.Count)
	}

	second := s.Update(key, 200, now)
	if second.Count != 1 {
		t.Fatalf("expected count 1 before second sample folded in, got %d", second.Count)
	}
	if second.Mean != 100 {
		t.Fatalf("expected pre-update mean 100, got %v", second.Mean)
	}
}

// TestWelfordMeanVarianceMatchesNaive is property test 2.
func TestWelfordMeanVarianceMatchesNaive(t *testing.T) {
	s := New(DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	values := []float64{10, 12, 23, 23, 16, 23, 21, 16}

	for _, v := range values {
		s.Update(key, v, now)
	}
	snap, ok := s.Snapshot(key)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}

	wantMean := naiveMean(values)
	wantVar := naiveVariance(values, wantMean)
	if math.Abs(snap.Mean-wantMean) > 1e-9 {
		t.Fatalf("mean mismatch: got %v want %v", snap.Mean, wantMean)
	}
	if math.Abs(snap.Variance-wantVar) > 1e-9 {
		t.Fatalf("variance mismatch: got %v want %v", snap.Variance, wantVar)
	}
}

func naiveMean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func naiveVariance(vs []float64, mean float64) float64 {
	sum := 0.0
	for _, v := range vs {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vs))
}

// TestWindowEvictionKeepsVarianceNonNegative is property test 9: after many
// evictions past window capacity, variance never goes negative and tracks
// the trailing window, not the full history.
func TestWindowEvictionKeepsVarianceNonNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 5
	s := New(cfg)
	key := testKey()
	now := time.Now().UTC()

	for i := 0; i < 500; i++ {
		v := float64((i*37)%101) + 1
		snap := s.Update(key, v, now)
		if snap.Variance < 0 {
			t.Fatalf("variance went negative at iteration %d: %v", i, snap.Variance)
		}
	}
	final, ok := s.Snapshot(key)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if final.Count != cfg.WindowSize {
		t.Fatalf("expected window capped at %d, got %d", cfg.WindowSize, final.Count)
	}
}

// TestQuantilesOnKnownData is property test 3 grounding: sorted-multiset
// quantiles on a known small sample.
func TestQuantilesOnKnownData(t *testing.T) {
	s := New(DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, v := range values {
		s.Update(key, v, now)
	}
	snap, _ := s.Snapshot(key)
	if snap.Median < 5.4 || snap.Median > 5.6 {
		t.Fatalf("expected median near 5.5, got %v", snap.Median)
	}
	if snap.Q1 >= snap.Median || snap.Median >= snap.Q3 {
		t.Fatalf("expected Q1 < median < Q3, got %v %v %v", snap.Q1, snap.Median, snap.Q3)
	}
}

func TestMADNonNegative(t *testing.T) {
	s := New(DefaultConfig())
	key := testKey()
	now := time.Now().UTC()
	for _, v := range []float64{1, 1, 1, 1, 100} {
		s.Update(key, v, now)
	}
	snap, _ := s.Snapshot(key)
	if snap.MAD < 0 {
		t.Fatalf("MAD must be non-negative, got %v", snap.MAD)
	}
}

func TestWarmupThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmupMinSamples = 3
	s := New(cfg)
	key := testKey()
	now := time.Now().UTC()

	s.Update(key, 1, now)
	s.Update(key, 2, now)
	snap, _ := s.Snapshot(key)
	if snap.IsWarm {
		t.Fatalf("expected not warm with 2 samples and threshold 3")
	}
	s.Update(key, 3, now)
	snap, _ = s.Snapshot(key)
	if !snap.IsWarm {
		t.Fatalf("expected warm with 3 samples and threshold 3")
	}
}

func TestCUSUMResetAndUpdate(t *testing.T) {
	s := New(DefaultConfig())
	key := testKey()
	s.Update(key, 1, time.Now().UTC())
	s.UpdateCUSUM(key, 5, -3)

	snap, _ := s.Snapshot(key)
	if snap.CUSUMPos != 5 || snap.CUSUMNeg != -3 {
		t.Fatalf("expected cusum state to persist, got %+v", snap)
	}
	s.ResetCUSUM(key)
	snap, _ = s.Snapshot(key)
	if snap.CUSUMPos != 0 || snap.CUSUMNeg != 0 {
		t.Fatalf("expected cusum reset to zero, got %+v", snap)
	}
}

// TestConcurrentUpdatesDoNotRace exercises many goroutines updating
// distinct keys concurrently (the pipeline's per-key worker partitioning
// guarantee means a single key is never contended, but distinct keys must
// not corrupt each other's shard).
func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	s := New(DefaultConfig())
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		key := telemetry.BaselineKey{ServiceID: "svc", ModelID: "model", Metric: telemetry.MetricLatencyMs}
		key.ServiceID = key.ServiceID + string(rune('A'+i%26)) + string(rune('a'+i/26))
		wg.Add(1)
		go func(k telemetry.BaselineKey) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(k, float64(j), now)
			}
		}(key)
	}
	wg.Wait()

	if s.KeyCount() != 32 {
		t.Fatalf("expected 32 distinct keys, got %d", s.KeyCount())
	}
}

func TestMaxKeysEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxKeys = 2
	s := New(cfg)
	now := time.Now().UTC()

	k1 := telemetry.BaselineKey{ServiceID: "a", ModelID: "m", Metric: telemetry.MetricLatencyMs}
	k2 := telemetry.BaselineKey{ServiceID: "b", ModelID: "m", Metric: telemetry.MetricLatencyMs}
	k3 := telemetry.BaselineKey{ServiceID: "c", ModelID: "m", Metric: telemetry.MetricLatencyMs}

	s.Update(k1, 1, now)
	s.Update(k2, 1, now)
	s.Update(k3, 1, now)

	if s.KeyCount() != 2 {
		t.Fatalf("expected max_keys bound of 2, got %d", s.KeyCount())
	}
	if _, ok := s.Snapshot(k1); ok {
		t.Fatalf("expected oldest key k1 to be evicted")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(DefaultConfig())
	now := time.Now().UTC()
	key := testKey()
	for _, v := range []float64{10, 20, 30, 40} {
		s.Update(key, v, now)
	}
	s.UpdateCUSUM(key, 2.5, -1.5)

	if err := s.Checkpoint(dir); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	restored := New(DefaultConfig())
	n, discarded, err := restored.Restore(dir)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if n != 1 || discarded != 0 {
		t.Fatalf("expected 1 restored 0 discarded, got %d/%d", n, discarded)
	}

	snap, ok := restored.Snapshot(key)
	if !ok {
		t.Fatal("expected restored key to be present")
	}
	if snap.Count != 4 {
		t.Fatalf("expected 4 samples restored, got %d", snap.Count)
	}
	if snap.CUSUMPos != 2.5 || snap.CUSUMNeg != -1.5 {
		t.Fatalf("expected cusum state restored, got %+v", snap)
	}
}

func TestCheckpointTruncatedFileDiscardsTrailingRecord(t *testing.T) {
	dir := t.TempDir()
	s := New(DefaultConfig())
	now := time.Now().UTC()
	key := testKey()
	s.Update(key, 10, now)
	if err := s.Checkpoint(dir); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}

	sh := s.shardFor(key)
	idx := -1
	for i, candidate := range s.shards {
		if candidate == sh {
			idx = i
			break
		}
	}
	path := ShardFileName(dir, idx)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	truncated := data[:len(data)-2] // cut into the trailing CRC bytes
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("write truncated checkpoint: %v", err)
	}

	restored := New(DefaultConfig())
	n, discarded, err := restored.Restore(dir)
	if err != nil {
		t.Fatalf("restore should tolerate truncation, got error: %v", err)
	}
	if n != 0 || discarded != 1 {
		t.Fatalf("expected truncated record discarded, got restored=%d discarded=%d", n, discarded)
	}
}
