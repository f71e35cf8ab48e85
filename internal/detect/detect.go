// Package detect implements the statistical detector set: pure functions
// that take a sample and the matching pre-update baseline snapshot and
// report zero or one anomaly. Detectors never touch I/O or shared state —
// the only state they need (CUSUM's running sums) is carried in the
// baseline snapshot and written back through the baseline store by the
// caller.
package detect

import (
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Result is a detector's verdict on one sample.
type Result struct {
	Method     telemetry.Method
	Score      float64 // raw detector statistic (z, modified-z, CUSUM sum, …)
	Confidence float64 // in [0,1], used for AnomalyEvent.Score
	Severity   telemetry.Severity

	// CUSUMUpdated is set only by the CUSUM detector: it carries the new
	// running sums the caller must persist back to the baseline store
	// (reset to 0/0 on anomaly, otherwise the new S+/S- pair), since
	// Evaluate itself is pure and cannot write through the snapshot.
	CUSUMUpdated bool
	CUSUMPos     float64
	CUSUMNeg     float64
}

// Detector is the contract every statistical method implements (spec
// §4.4.2). Evaluate returns ok=false when no anomaly is found, including
// when the snapshot is cold (not yet warm) — callers must not invoke
// Evaluate on a cold snapshot, but detectors double-check defensively.
type Detector interface {
	Name() telemetry.Method
	Evaluate(value float64, snap baseline.Snapshot) (Result, bool)
}

// severityFromBands maps a sensitivity multiple-of-threshold to one of the
// four severity bands, shared by z-score and MAD (spec §4.4.3: "severity
// bands analogous to z-score").
func severityFromBands(magnitude, threshold float64) telemetry.Severity {
	switch {
	case magnitude >= threshold+3:
		return telemetry.SeverityCritical
	case magnitude >= threshold+2:
		return telemetry.SeverityHigh
	case magnitude >= threshold+1:
		return telemetry.SeverityWarning
	default:
		return telemetry.SeverityInfo
	}
}

// confidenceFromMagnitude implements the z-score confidence formula, reused
// by MAD: min(1, (|z|-k)/3 + 0.5), clamped to [0.5, 1].
func confidenceFromMagnitude(magnitude, threshold float64) float64 {
	c := (magnitude-threshold)/3 + 0.5
	if c > 1 {
		c = 1
	}
	if c < 0.5 {
		c = 0.5
	}
	return c
}
