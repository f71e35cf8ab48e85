package detect

import (
	"math"

	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// ZScore flags samples whose distance from the baseline mean, in standard
// deviations, exceeds K (spec §4.4.3).
type ZScore struct {
	K float64
}

// NewZScore builds a ZScore detector with the given sensitivity (default 3.0).
func NewZScore(k float64) *ZScore {
	if k <= 0 {
		k = 3.0
	}
	return &ZScore{K: k}
}

func (z *ZScore) Name() telemetry.Method { return telemetry.MethodZScore }

func (z *ZScore) Evaluate(value float64, snap baseline.Snapshot) (Result, bool) {
	if !snap.IsWarm || snap.StdDev <= 0 {
		return Result{}, false
	}
	zscore := (value - snap.Mean) / snap.StdDev
	mag := math.Abs(zscore)
	if mag < z.K {
		return Result{}, false
	}
	return Result{
		Method:     telemetry.MethodZScore,
		Score:      zscore,
		Confidence: confidenceFromMagnitude(mag, z.K),
		Severity:   severityFromBands(mag, z.K),
	}, true
}
