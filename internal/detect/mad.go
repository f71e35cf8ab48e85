package detect

import (
	"math"

	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// MAD flags samples whose modified z-score (scaled by median absolute
// deviation rather than stddev) exceeds K (spec §4.4.3). Falls through
// when MAD is 0 — a degenerate baseline with no variability cannot support
// this detector.
type MAD struct {
	K float64
}

// NewMAD builds a MAD detector with the given sensitivity (default 3.5).
func NewMAD(k float64) *MAD {
	if k <= 0 {
		k = 3.5
	}
	return &MAD{K: k}
}

func (m *MAD) Name() telemetry.Method { return telemetry.MethodMAD }

func (m *MAD) Evaluate(value float64, snap baseline.Snapshot) (Result, bool) {
	if !snap.IsWarm || snap.MAD == 0 {
		return Result{}, false
	}
	modifiedZ := 0.6745 * (value - snap.Median) / snap.MAD
	mag := math.Abs(modifiedZ)
	if mag < m.K {
		return Result{}, false
	}
	return Result{
		Method:     telemetry.MethodMAD,
		Score:      modifiedZ,
		Confidence: confidenceFromMagnitude(mag, m.K),
		Severity:   severityFromBands(mag, m.K),
	}, true
}
