package detect

import (
	"math"

	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// CUSUM tracks a two-sided cumulative sum change-point detector. Unlike the
// other three detectors it carries state across samples (the running
// S+/S- sums), but that state lives in the baseline record, not the
// detector itself — CUSUM.Evaluate remains a pure function of (value,
// snapshot), and the caller (the detector Set) is responsible for
// persisting the returned sums back via the baseline store (spec §4.4.3:
// "CUSUM state is per-key and lives inside the baseline record").
type CUSUM struct {
	H           float64
	SlackFactor float64
}

// NewCUSUM builds a CUSUM detector with default h=5, slack_factor=0.5.
func NewCUSUM(h, slackFactor float64) *CUSUM {
	if h <= 0 {
		h = 5
	}
	if slackFactor <= 0 {
		slackFactor = 0.5
	}
	return &CUSUM{H: h, SlackFactor: slackFactor}
}

func (c *CUSUM) Name() telemetry.Method { return telemetry.MethodCUSUM }

func (c *CUSUM) Evaluate(value float64, snap baseline.Snapshot) (Result, bool) {
	if !snap.IsWarm || snap.StdDev <= 0 {
		return Result{}, false
	}
	kappa := c.SlackFactor * snap.StdDev
	sPos := math.Max(0, snap.CUSUMPos+(value-snap.Mean-kappa))
	sNeg := math.Max(0, snap.CUSUMNeg-(value-snap.Mean+kappa))
	threshold := c.H * snap.StdDev

	maxSum := math.Max(sPos, sNeg)
	if maxSum < threshold {
		return Result{
			CUSUMUpdated: true,
			CUSUMPos:     sPos,
			CUSUMNeg:     sNeg,
		}, false
	}

	mag := maxSum / snap.StdDev
	return Result{
		Method:       telemetry.MethodCUSUM,
		Score:        maxSum,
		Confidence:   confidenceFromMagnitude(mag, c.H),
		Severity:     severityFromBands(mag, c.H),
		CUSUMUpdated: true,
		CUSUMPos:     0, // reset on anomaly so the change-point doesn't re-trigger
		CUSUMNeg:     0,
	}, true
}
