// Package telemetry holds the wire-facing data model for the anomaly
// pipeline: the inbound TelemetryEvent, the per-metric Sample it is
// projected into, and the outbound AnomalyEvent. Validation and
// sanitization live alongside the types they operate on.
package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of the originating LLM request.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Metric names drawn from the closed set a Sample may project onto.
const (
	MetricLatencyMs     = "latency_ms"
	MetricInputTokens   = "input_tokens"
	MetricOutputTokens  = "output_tokens"
	MetricTotalTokens   = "total_tokens"
	MetricCostUSD       = "cost_usd"
	MetricErrorRate     = "error_rate"
)

// Severity bands an anomaly's confidence/magnitude into an operator-facing
// tier.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyType classifies what kind of drift an anomaly represents, derived
// from the metric that triggered (see AnomalyTypeForMetric).
type AnomalyType string

const (
	AnomalyLatencySpike   AnomalyType = "latency_spike"
	AnomalyTokenAbuse     AnomalyType = "token_abuse"
	AnomalyCostSpike      AnomalyType = "cost_spike"
	AnomalyErrorRateSpike AnomalyType = "error_rate_spike"
	AnomalyQualityDrop    AnomalyType = "quality_drop"
	AnomalyDrift          AnomalyType = "drift"
	AnomalySecurityPattern AnomalyType = "security_pattern"
)

// Method names the detector that produced an AnomalyEvent.
type Method string

const (
	MethodZScore Method = "zscore"
	MethodIQR    Method = "iqr"
	MethodMAD    Method = "mad"
	MethodCUSUM  Method = "cusum"
)

// TelemetryEvent is the unit of input. Constructed by the source adapter,
// mutated exactly once by the Sanitizer (text fields only), immutable
// thereafter. Nothing downstream of detection retains it.
type TelemetryEvent struct {
	EventID       uuid.UUID
	Timestamp     time.Time
	ServiceID     string
	ModelID       string
	LatencyMs     float64
	InputTokens   int64
	OutputTokens  int64
	CostUSD       float64
	Status        Status
	PromptText    string
	ResponseText  string
	UserID        string
	CorrelationID string
	Tags          map[string]string
}

// TotalTokens is the derived input+output token count.
func (e *TelemetryEvent) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens
}

// Sample is a projection of one event onto one metric.
type Sample struct {
	Metric    string
	Value     float64
	Timestamp time.Time
}

// BaselineKey identifies one rolling baseline: (service, model, metric).
type BaselineKey struct {
	ServiceID string
	ModelID   string
	Metric    string
}

// BaselineSummary is the subset of baseline statistics an AnomalyEvent
// carries for display (mean/stddev/count at detection time).
type BaselineSummary struct {
	Mean   float64
	StdDev float64
	Count  int
}

// AnomalyEvent is the unit of output produced by a detector.
type AnomalyEvent struct {
	AnomalyID        uuid.UUID
	Timestamp        time.Time
	Severity         Severity
	AnomalyType      AnomalyType
	Method           Method
	Key              BaselineKey
	Score            float64
	Observed         float64
	Baseline         BaselineSummary
	RootCauseHint    string
	RemediationHint  string
	SourceEventID    uuid.UUID
}

// AnomalyTypeForMetric implements §4.4.4: the anomaly type is a function of
// the metric that triggered.
func AnomalyTypeForMetric(metric string) AnomalyType {
	switch metric {
	case MetricLatencyMs:
		return AnomalyLatencySpike
	case MetricCostUSD:
		return AnomalyCostSpike
	case MetricInputTokens, MetricOutputTokens, MetricTotalTokens:
		return AnomalyTokenAbuse
	case MetricErrorRate:
		return AnomalyErrorRateSpike
	default:
		return AnomalyDrift
	}
}
