package alert

import (
	"context"
	"time"

	"github.com/llm-sentinel/sentinel/internal/sink"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/metrics"
)

// Emitter accepts detector output, deduplicates, and hands alerts to sinks
// in the fixed order spec §4.5 mandates: storage, then transport, then
// counters. A failure in storage does not prevent transport; counters are
// always updated for an admitted alert regardless of sink outcome.
type Emitter struct {
	dedup     *Dedup
	log       *Log
	storage   sink.Sink
	transport sink.Sink
	counters  sink.Sink
}

// NewEmitter wires an Emitter. storage and transport are expected to
// already be wrapped in sink.Retrying by the caller; counters never fails
// so it is not retried.
func NewEmitter(dedup *Dedup, log *Log, storage, transport, counters sink.Sink) *Emitter {
	return &Emitter{dedup: dedup, log: log, storage: storage, transport: transport, counters: counters}
}

// Emit runs the dedup check and, if admitted, forwards e to every sink in
// order. Returns true if the alert was forwarded (not suppressed).
func (e *Emitter) Emit(ctx context.Context, ev telemetry.AnomalyEvent, now time.Time) bool {
	fp := ComputeFingerprint(ev)
	if !e.dedup.Admit(fp, now) {
		metrics.DedupSuppressionsTotal.Inc()
		return false
	}

	e.log.Append(ev)

	if e.storage != nil {
		e.storage.WriteOne(ctx, ev) // best-effort; failure must not block transport
	}

	delivered := false
	if e.transport != nil {
		if outcome := e.transport.WriteOne(ctx, ev); outcome == sink.OK {
			delivered = true
		}
	}

	if e.counters != nil {
		e.counters.WriteOne(ctx, ev)
	}

	if delivered {
		e.log.MarkDelivered(ev)
	} else {
		e.log.MarkFailed(ev)
	}
	return true
}

// Log exposes the emitter's anomaly log for the query API.
func (e *Emitter) Log() *Log { return e.log }
