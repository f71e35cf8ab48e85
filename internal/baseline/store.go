// Package baseline maintains the rolling per-key statistical baseline the
// detectors evaluate against. The store is a sharded map: each shard owns
// an independent mutex, so keys hashing to different shards update without
// coordination (spec §5's "no global mutex gates the hot path"). Combined
// with the ingestion pipeline's per-key worker pinning, a given key is
// always updated by exactly one goroutine, so shard locking here exists to
// let the query API read snapshots concurrently with hot-path updates, not
// to arbitrate between writers.
package baseline

import (
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

const defaultShardCount = 64

// Config controls window capacity and warm-up threshold (spec §3/§6).
type Config struct {
	WindowSize       int
	WarmupMinSamples int
	MaxKeys          int
	ShardCount       int
}

// DefaultConfig matches spec §6's defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:       1000,
		WarmupMinSamples: 30,
		MaxKeys:          100000,
		ShardCount:       defaultShardCount,
	}
}

// Snapshot is the immutable view of a baseline handed to a detector. It
// reflects the baseline state *before* the triggering sample was folded in
// (spec §4.4.1's "pre-update snapshot").
type Snapshot struct {
	Key      telemetry.BaselineKey
	IsWarm   bool
	Count    int
	Mean     float64
	Variance float64
	StdDev   float64
	Min      float64
	Max      float64
	Q1       float64
	Median   float64
	Q3       float64
	MAD      float64
	CUSUMPos float64
	CUSUMNeg float64
	window   []float64 // defensive copy, used by MAD recompute and query API
}

// Window returns a copy of the sample values backing this snapshot, oldest
// first.
func (s Snapshot) Window() []float64 {
	out := make([]float64, len(s.window))
	copy(out, s.window)
	return out
}

// baseline is the mutable per-key record. All fields are only ever touched
// while holding the owning shard's mutex.
type baseline struct {
	key telemetry.BaselineKey

	samples []float64 // ring-like ordered window, oldest first
	cap     int

	count    int64 // total samples ever folded in (not bounded by cap)
	mean     float64
	m2       float64 // Welford's sum of squared deviations
	min      float64
	max      float64

	cusumPos float64
	cusumNeg float64

	lastUpdated time.Time
}

func newBaseline(key telemetry.BaselineKey, windowCap int) *baseline {
	return &baseline{
		key:     key,
		samples: make([]float64, 0, windowCap),
		cap:     windowCap,
		min:     math.Inf(1),
		max:     math.Inf(-1),
	}
}

// snapshot builds an immutable Snapshot of the baseline's current state,
// i.e. *before* any pending sample is applied.
func (b *baseline) snapshot(warmupMin int) Snapshot {
	n := len(b.samples)
	snap := Snapshot{
		Key:    b.key,
		IsWarm: n >= warmupMin,
		Count:  n,
	}
	if n == 0 {
		return snap
	}
	snap.Mean = b.mean
	variance := 0.0
	if n > 1 {
		variance = b.m2 / float64(n)
	}
	snap.Variance = variance
	snap.StdDev = math.Sqrt(variance)
	snap.Min = b.min
	snap.Max = b.max
	snap.CUSUMPos = b.cusumPos
	snap.CUSUMNeg = b.cusumNeg

	sorted := make([]float64, n)
	copy(sorted, b.samples)
	sort.Float64s(sorted)
	snap.Q1 = quantile(sorted, 0.25)
	snap.Median = quantile(sorted, 0.5)
	snap.Q3 = quantile(sorted, 0.75)
	snap.MAD = medianAbsoluteDeviation(sorted, snap.Median)
	snap.window = make([]float64, n)
	copy(snap.window, b.samples)
	return snap
}

// applySample folds one new value into the window, evicting the oldest on
// overflow, and updates the running summary statistics per spec §4.4.1's
// numerical discipline (Welford mean/variance, full recompute on
// eviction-driven negative-variance drift).
func (b *baseline) applySample(value float64, at time.Time) {
	n := len(b.samples)
	if n >= b.cap && n > 0 {
		evicted := b.samples[0]
		b.samples = append(b.samples[:0], b.samples[1:]...)
		b.evictWelford(evicted)
	}
	b.samples = append(b.samples, value)
	b.foldWelford(value)
	if value < b.min {
		b.min = value
	}
	if value > b.max {
		b.max = value
	}
	b.count++
	b.lastUpdated = at
}

func (b *baseline) foldWelford(value float64) {
	n := float64(len(b.samples))
	delta := value - b.mean
	b.mean += delta / n
	delta2 := value - b.mean
	b.m2 += delta * delta2
}

// evictWelford removes one sample's contribution via symmetric subtraction.
// The caller has already removed evicted from b.samples, so the window held
// len(b.samples)+1 values before the eviction.
// If the result would make variance negative (floating-point drift over a
// long window), the window is recomputed from scratch instead, per spec
// §4.4.1/§9.
func (b *baseline) evictWelford(evicted float64) {
	nBefore := float64(len(b.samples) + 1)
	if nBefore <= 1 {
		b.mean = 0
		b.m2 = 0
		return
	}
	nAfter := nBefore - 1
	meanBefore := b.mean
	newMean := (meanBefore*nBefore - evicted) / nAfter
	newM2 := b.m2 - (evicted-meanBefore)*(evicted-newMean)
	if newM2 < 0 {
		b.recomputeFromWindow()
		return
	}
	b.mean = newMean
	b.m2 = newM2
}

// recomputeFromWindow rebuilds mean/m2/min/max from b.samples (the window
// after the eviction, *before* the caller appends the new value) in one pass.
func (b *baseline) recomputeFromWindow() {
	n := len(b.samples)
	if n == 0 {
		b.mean, b.m2, b.min, b.max = 0, 0, math.Inf(1), math.Inf(-1)
		return
	}
	var mean, m2 float64
	min, max := math.Inf(1), math.Inf(-1)
	for i, v := range b.samples {
		delta := v - mean
		mean += delta / float64(i+1)
		delta2 := v - mean
		m2 += delta * delta2
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	b.mean, b.m2, b.min, b.max = mean, m2, min, max
}

func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func medianAbsoluteDeviation(sorted []float64, median float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	devs := make([]float64, len(sorted))
	for i, v := range sorted {
		devs[i] = math.Abs(v - median)
	}
	sort.Float64s(devs)
	return quantile(devs, 0.5)
}

// shard is one independently-locked partition of the key space.
type shard struct {
	mu   sync.Mutex
	data map[telemetry.BaselineKey]*baseline
}

// Store is the process-wide, concurrently updatable baseline map described
// in spec §4.4.1.
type Store struct {
	cfg    Config
	shards []*shard

	totalKeys int64 // approximate; protected by keysMu
	keysMu    sync.Mutex
	lru       []telemetry.BaselineKey // keys in creation order, trimmed from the front on eviction
}

// New builds a Store with cfg's shard count (default 64 if unset).
func New(cfg Config) *Store {
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = defaultShardCount
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.WarmupMinSamples <= 0 {
		cfg.WarmupMinSamples = 30
	}
	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{data: make(map[telemetry.BaselineKey]*baseline)}
	}
	return &Store{cfg: cfg, shards: shards}
}

func (s *Store) shardFor(key telemetry.BaselineKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.ServiceID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.ModelID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key.Metric))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Update appends sample to key's baseline, evicting the oldest on overflow,
// and returns the pre-update snapshot detectors must evaluate against.
func (s *Store) Update(key telemetry.BaselineKey, value float64, at time.Time) Snapshot {
	sh := s.shardFor(key)
	sh.mu.Lock()
	b, ok := sh.data[key]
	if !ok {
		b = newBaseline(key, s.cfg.WindowSize)
		sh.data[key] = b
	}
	snap := b.snapshot(s.cfg.WarmupMinSamples)
	b.applySample(value, at)
	sh.mu.Unlock()

	if !ok {
		s.noteNewKey(key)
	}
	return snap
}

// Snapshot returns a read-only view of key's current baseline (including
// the most recently folded sample), for the query API. ok is false if the
// key has never been observed.
func (s *Store) Snapshot(key telemetry.BaselineKey) (Snapshot, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	b, ok := sh.data[key]
	if !ok {
		return Snapshot{}, false
	}
	snap := b.snapshot(s.cfg.WarmupMinSamples)
	// No sample is in flight here, so b.snapshot already covers the full
	// current window; Count and IsWarm are restated from that window.
	snap.Count = len(b.samples)
	snap.IsWarm = snap.Count >= s.cfg.WarmupMinSamples
	return snap, true
}

// ResetCUSUM zeroes the CUSUM running sums for key, per spec §4.4.3: "on
// anomaly, reset both sums to 0 so the change-point does not continually
// re-trigger."
func (s *Store) ResetCUSUM(key telemetry.BaselineKey) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok := sh.data[key]; ok {
		b.cusumPos = 0
		b.cusumNeg = 0
	}
}

// UpdateCUSUM sets the CUSUM running sums for key (called by the CUSUM
// detector after evaluating a sample, since CUSUM state — unlike the other
// detectors — must persist across samples for the same key).
func (s *Store) UpdateCUSUM(key telemetry.BaselineKey, pos, neg float64) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if b, ok := sh.data[key]; ok {
		b.cusumPos = pos
		b.cusumNeg = neg
	}
}

// KeyCount returns the number of distinct baseline keys currently tracked.
func (s *Store) KeyCount() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += len(sh.data)
		sh.mu.Unlock()
	}
	return total
}

// Keys returns every baseline key currently tracked, for checkpointing and
// the query API's key listing.
func (s *Store) Keys() []telemetry.BaselineKey {
	var out []telemetry.BaselineKey
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.data {
			out = append(out, k)
		}
		sh.mu.Unlock()
	}
	return out
}

// noteNewKey enforces the operator max_keys bound (spec §5 "Memory bounds")
// by evicting the earliest-created key when the cardinality limit is
// exceeded. Keys are tracked in creation order only: later updates do not
// move a key, so the evicted key is the oldest by creation, not the least
// recently updated. Callers must not hold any shard lock: the lru
// bookkeeping has its own mutex, and the evicted key's shard lock is taken
// only after that mutex is released, so no two locks are ever held at once.
func (s *Store) noteNewKey(key telemetry.BaselineKey) {
	if s.cfg.MaxKeys <= 0 {
		return
	}
	s.keysMu.Lock()
	s.lru = append(s.lru, key)
	evictKey, shouldEvict := telemetry.BaselineKey{}, false
	if len(s.lru) > s.cfg.MaxKeys {
		evictKey = s.lru[0]
		s.lru = s.lru[1:]
		shouldEvict = true
	}
	s.keysMu.Unlock()

	if shouldEvict && evictKey != key {
		sh := s.shardFor(evictKey)
		sh.mu.Lock()
		delete(sh.data, evictKey)
		sh.mu.Unlock()
	}
}

// Purge removes a key's baseline entirely (explicit operator purge).
func (s *Store) Purge(key telemetry.BaselineKey) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.data, key)
	sh.mu.Unlock()
}
