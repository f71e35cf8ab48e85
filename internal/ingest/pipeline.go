// Package ingest implements the Event Source Adapter and Ingestion
// Pipeline (spec §4.1/§4.3): decoding, validation, sanitization, bounded
// per-worker queues, stable-hash worker partitioning, and configurable
// backpressure.
package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/detect"
	"github.com/llm-sentinel/sentinel/internal/errs"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/metrics"
	"github.com/rs/zerolog/log"
)

// BackpressurePolicy selects what happens when a worker's queue is full
// (spec §4.3/§6).
type BackpressurePolicy string

const (
	PolicyBlock      BackpressurePolicy = "block"
	PolicyDropNewest BackpressurePolicy = "drop_newest"
	PolicyDropOldest BackpressurePolicy = "drop_oldest"
)

// Config mirrors spec §6's pipeline.* block.
type Config struct {
	QueueCapacity int
	Workers       int
	Backpressure  BackpressurePolicy
	DecodeFormat  telemetry.Format
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig(cpuCount int) Config {
	if cpuCount <= 0 {
		cpuCount = 1
	}
	return Config{
		QueueCapacity: 10000,
		Workers:       cpuCount,
		Backpressure:  PolicyDropOldest,
		DecodeFormat:  telemetry.FormatJSON,
	}
}

type workItem struct {
	event *telemetry.TelemetryEvent
}

// Pipeline is the bounded, worker-partitioned heart of the ingestion
// stage. Each worker owns one buffered channel; a key is always routed to
// the same worker by a stable hash of (service_id, model_id), giving the
// per-key ordering guarantee of spec §4.3/§5 without any cross-worker
// coordination.
type Pipeline struct {
	cfg       Config
	validator *telemetry.Validator
	sanitizer *telemetry.Sanitizer
	store     *baseline.Store
	detectors *detect.Set
	emitter   *alert.Emitter

	queues []chan workItem
	mu     []sync.Mutex // guards drop_oldest's pop-then-push race per worker

	wg sync.WaitGroup
}

// New builds a Pipeline wired to the given components.
func New(cfg Config, validator *telemetry.Validator, sanitizer *telemetry.Sanitizer, store *baseline.Store, detectors *detect.Set, emitter *alert.Emitter) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 10000
	}
	if cfg.Backpressure == "" {
		cfg.Backpressure = PolicyDropOldest
	}
	p := &Pipeline{
		cfg:       cfg,
		validator: validator,
		sanitizer: sanitizer,
		store:     store,
		detectors: detectors,
		emitter:   emitter,
		queues:    make([]chan workItem, cfg.Workers),
		mu:        make([]sync.Mutex, cfg.Workers),
	}
	for i := range p.queues {
		p.queues[i] = make(chan workItem, cfg.QueueCapacity)
	}
	return p
}

// Start spawns the N worker goroutines. They run until ctx is cancelled
// and their queues have drained (grace period is the caller's concern via
// ctx, per spec §5's shutdown semantics).
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) runWorker(ctx context.Context, idx int) {
	defer p.wg.Done()
	queue := p.queues[idx]
	for {
		select {
		case <-ctx.Done():
			p.drain(queue)
			return
		case item, ok := <-queue:
			if !ok {
				return
			}
			p.process(item.event)
		}
	}
}

// drain processes whatever remains buffered in queue without blocking,
// honoring the bounded shutdown grace period (the caller's ctx already
// carries the deadline).
func (p *Pipeline) drain(queue chan workItem) {
	for {
		select {
		case item, ok := <-queue:
			if !ok {
				return
			}
			p.process(item.event)
		default:
			return
		}
	}
}

func (p *Pipeline) process(e *telemetry.TelemetryEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("service_id", e.ServiceID).Msg("detector panic; event dropped")
		}
	}()

	key := telemetry.BaselineKey{ServiceID: e.ServiceID, ModelID: e.ModelID}
	now := time.Now().UTC()
	for _, sample := range projectSamples(e) {
		sampleKey := key
		sampleKey.Metric = sample.Metric
		p.EvaluateSample(sampleKey, sample.Value, now, e.EventID)
	}
}

// EvaluateSample folds one (key, value) sample into the baseline store,
// runs the detector set against the resulting snapshot, and emits any
// firing result through the emitter. This is the per-sample core of
// process, exported so the admin/diagnostic surface (spec §6 ADD) can
// drive the real detection path for one synthetic sample without going
// through the full event decode/validate/sanitize/enqueue machinery.
func (p *Pipeline) EvaluateSample(key telemetry.BaselineKey, value float64, now time.Time, sourceEventID uuid.UUID) []telemetry.AnomalyEvent {
	snap := p.store.Update(key, value, now)

	metrics.DetectorEvaluationsTotal.WithLabelValues("all").Inc()
	results := p.detectors.Evaluate(key, value, snap)
	var emitted []telemetry.AnomalyEvent
	for _, res := range results {
		anomaly := telemetry.AnomalyEvent{
			AnomalyID:     uuid.New(),
			Timestamp:     now,
			Severity:      res.Severity,
			AnomalyType:   telemetry.AnomalyTypeForMetric(key.Metric),
			Method:        res.Method,
			Key:           key,
			Score:         res.Confidence,
			Observed:      value,
			Baseline:      telemetry.BaselineSummary{Mean: snap.Mean, StdDev: snap.StdDev, Count: snap.Count},
			SourceEventID: sourceEventID,
		}
		if p.emitter != nil {
			p.emitter.Emit(context.Background(), anomaly, now)
		}
		emitted = append(emitted, anomaly)
	}
	return emitted
}

// Validator exposes the pipeline's Validator for callers that need to
// dry-run validation/sanitization without submitting (the admin/echo
// diagnostic endpoint).
func (p *Pipeline) Validator() *telemetry.Validator { return p.validator }

// Sanitizer exposes the pipeline's Sanitizer for the same purpose.
func (p *Pipeline) Sanitizer() *telemetry.Sanitizer { return p.sanitizer }

// Emitter exposes the pipeline's Emitter so the admin surface can inject
// synthetic anomalies through the real delivery path (spec §6 ADD's
// /admin/respond).
func (p *Pipeline) Emitter() *alert.Emitter { return p.emitter }

// projectSamples maps one event onto the metrics the detector set tracks.
// error_rate is the instantaneous per-event indicator (1.0 on error/timeout,
// 0.0 on success); the baseline's rolling mean over the window approximates
// a windowed error rate without a separate aggregation stage.
func projectSamples(e *telemetry.TelemetryEvent) []telemetry.Sample {
	errorIndicator := 0.0
	if e.Status != telemetry.StatusSuccess {
		errorIndicator = 1.0
	}
	return []telemetry.Sample{
		{Metric: telemetry.MetricLatencyMs, Value: e.LatencyMs, Timestamp: e.Timestamp},
		{Metric: telemetry.MetricInputTokens, Value: float64(e.InputTokens), Timestamp: e.Timestamp},
		{Metric: telemetry.MetricOutputTokens, Value: float64(e.OutputTokens), Timestamp: e.Timestamp},
		{Metric: telemetry.MetricTotalTokens, Value: float64(e.TotalTokens()), Timestamp: e.Timestamp},
		{Metric: telemetry.MetricCostUSD, Value: e.CostUSD, Timestamp: e.Timestamp},
		{Metric: telemetry.MetricErrorRate, Value: errorIndicator, Timestamp: e.Timestamp},
	}
}

// Submit decodes, validates, and sanitizes a raw wire record, then enqueues
// it onto the owning worker's queue per the configured backpressure policy.
// This is the Source Adapter's hand-off point into the pipeline (spec
// §4.1): a nil error means the record was enqueued. Decode and validation
// rejections return their error, and a record dropped under drop_newest
// returns a KindBackpressure error, so a dropped record is never reported
// as accepted. Under drop_oldest the new record is always enqueued and the
// displaced older one is counted as the drop.
func (p *Pipeline) Submit(raw []byte, now time.Time) error {
	res, err := telemetry.Decode(p.cfg.DecodeFormat, raw)
	if err != nil {
		metrics.EventsRejectedTotal.WithLabelValues("decode_error").Inc()
		return err
	}

	if err := p.validator.Validate(&res.Event, now); err != nil {
		metrics.EventsRejectedTotal.WithLabelValues(reasonOf(err)).Inc()
		return err
	}
	if res.HasDeclaredTotal {
		if err := telemetry.ValidateTotalTokens(&res.Event, res.DeclaredTotal, true); err != nil {
			metrics.EventsRejectedTotal.WithLabelValues(reasonOf(err)).Inc()
			return err
		}
	}

	p.sanitizer.Sanitize(&res.Event)
	metrics.EventsIngestedTotal.Inc()

	return p.enqueue(res.Event)
}

func (p *Pipeline) enqueue(e telemetry.TelemetryEvent) error {
	idx := p.workerFor(e.ServiceID, e.ModelID)
	item := workItem{event: &e}
	queue := p.queues[idx]

	switch p.cfg.Backpressure {
	case PolicyBlock:
		queue <- item
		return nil

	case PolicyDropNewest:
		select {
		case queue <- item:
			return nil
		default:
			metrics.BackpressureDropsTotal.WithLabelValues(string(PolicyDropNewest)).Inc()
			return errs.New(errs.KindBackpressure, string(PolicyDropNewest))
		}

	default: // PolicyDropOldest
		p.mu[idx].Lock()
		defer p.mu[idx].Unlock()
		select {
		case queue <- item:
			return nil
		default:
			select {
			case <-queue:
				metrics.BackpressureDropsTotal.WithLabelValues(string(PolicyDropOldest)).Inc()
			default:
			}
			select {
			case queue <- item:
			default:
				metrics.BackpressureDropsTotal.WithLabelValues(string(PolicyDropOldest)).Inc()
			}
			return nil
		}
	}
}

func (p *Pipeline) workerFor(serviceID, modelID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(serviceID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(modelID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// QueueDepth reports the current buffered length of worker idx's queue,
// for the admin/info surface.
func (p *Pipeline) QueueDepth(idx int) int {
	if idx < 0 || idx >= len(p.queues) {
		return 0
	}
	return len(p.queues[idx])
}

// WorkerCount returns the number of workers.
func (p *Pipeline) WorkerCount() int { return len(p.queues) }

func reasonOf(err error) string {
	if ve, ok := err.(*errs.Error); ok {
		return ve.Reason
	}
	return "unknown"
}
