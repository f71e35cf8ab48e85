package sink

import (
	"context"
	"time"

	"github.com/llm-sentinel/sentinel/internal/backoff"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/metrics"
)

// Retrying wraps a Sink with bounded exponential-backoff retry on
// Transient outcomes (spec §4.6). A Permanent outcome, or exhausting
// maxAttempts, drops the record and increments the permanent-failure
// counter; retries increment the retry counter.
type Retrying struct {
	inner       Sink
	policy      backoff.Policy
	maxAttempts int
	callTimeout time.Duration
}

// NewRetrying wraps inner with policy, making up to maxAttempts attempts in
// total (default 5), applying callTimeout (default 5s) per attempt.
func NewRetrying(inner Sink, policy backoff.Policy, maxAttempts int, callTimeout time.Duration) *Retrying {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Retrying{inner: inner, policy: policy, maxAttempts: maxAttempts, callTimeout: callTimeout}
}

func (r *Retrying) Name() string { return r.inner.Name() }

// WriteOne retries inner.WriteOne on Transient outcomes until it succeeds,
// hits a Permanent outcome, or exhausts maxAttempts (at which point the
// record is treated as a permanent failure). ctx cancellation aborts the
// retry loop early.
func (r *Retrying) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		outcome := r.inner.WriteOne(callCtx, e)
		cancel()

		switch outcome {
		case OK:
			return OK
		case Permanent:
			metrics.SinkPermanentFailuresTotal.WithLabelValues(r.Name()).Inc()
			return Permanent
		case Transient:
			if attempt == r.maxAttempts-1 {
				break
			}
			metrics.SinkRetriesTotal.WithLabelValues(r.Name()).Inc()
			select {
			case <-ctx.Done():
				metrics.SinkPermanentFailuresTotal.WithLabelValues(r.Name()).Inc()
				return Permanent
			case <-time.After(r.policy.Duration(attempt)):
			}
		}
	}
	metrics.SinkPermanentFailuresTotal.WithLabelValues(r.Name()).Inc()
	return Permanent
}
