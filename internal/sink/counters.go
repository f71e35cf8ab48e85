package sink

import (
	"context"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/llm-sentinel/sentinel/metrics"
)

// Counters is the in-process counters sink (spec §4.5 forwarding step 3):
// it never fails, since it only increments Prometheus counters already
// registered by the metrics package.
type Counters struct{}

func NewCounters() *Counters { return &Counters{} }

func (c *Counters) Name() string { return "counters" }

func (c *Counters) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	metrics.AnomaliesEmittedTotal.WithLabelValues(string(e.Severity)).Inc()
	return OK
}
