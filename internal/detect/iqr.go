package detect

import (
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// IQR flags samples outside [Q1 - m*IQR, Q3 + m*IQR]. Preferred over
// z-score when the baseline is skewed (spec §4.4.3).
type IQR struct {
	M float64
}

// NewIQR builds an IQR detector with the given multiplier (default 1.5).
func NewIQR(m float64) *IQR {
	if m <= 0 {
		m = 1.5
	}
	return &IQR{M: m}
}

func (d *IQR) Name() telemetry.Method { return telemetry.MethodIQR }

func (d *IQR) Evaluate(value float64, snap baseline.Snapshot) (Result, bool) {
	if !snap.IsWarm {
		return Result{}, false
	}
	iqr := snap.Q3 - snap.Q1
	lower := snap.Q1 - d.M*iqr
	upper := snap.Q3 + d.M*iqr
	if value >= lower && value <= upper {
		return Result{}, false
	}

	var distance float64
	if value < lower {
		distance = lower - value
	} else {
		distance = value - upper
	}
	// IQR has no natural "sigma" scale; bucket severity by how many widths
	// of the fence the sample clears, on the same band shape as z-score.
	var mag float64
	if iqr > 0 {
		mag = distance/iqr + d.M
	} else {
		mag = d.M + 1 // any deviation from a zero-width fence is meaningful
	}
	return Result{
		Method:     telemetry.MethodIQR,
		Score:      mag,
		Confidence: confidenceFromMagnitude(mag, d.M),
		Severity:   severityFromBands(mag, d.M),
	}, true
}
