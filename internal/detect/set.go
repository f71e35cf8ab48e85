package detect

import (
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Config mirrors spec §6's detectors.* block.
type Config struct {
	ZScore ZScoreConfig
	IQR    IQRConfig
	MAD    MADConfig
	CUSUM  CUSUMConfig
}

type ZScoreConfig struct {
	Enabled bool
	K       float64
}

type IQRConfig struct {
	Enabled bool
	M       float64
}

type MADConfig struct {
	Enabled bool
	K       float64
}

type CUSUMConfig struct {
	Enabled     bool
	H           float64
	SlackFactor float64
}

// DefaultConfig matches spec §6's stated defaults, all detectors enabled.
func DefaultConfig() Config {
	return Config{
		ZScore: ZScoreConfig{Enabled: true, K: 3.0},
		IQR:    IQRConfig{Enabled: true, M: 1.5},
		MAD:    MADConfig{Enabled: true, K: 3.5},
		CUSUM:  CUSUMConfig{Enabled: true, H: 5, SlackFactor: 0.5},
	}
}

// Set runs every enabled detector against a sample and snapshot. It owns
// the baseline store handle solely to persist CUSUM's running sums back
// (the one piece of detector state that outlives a single evaluation).
type Set struct {
	store     *baseline.Store
	detectors []Detector
	cusum     *CUSUM
}

// NewSet builds a Set from cfg, wiring only the enabled detectors.
func NewSet(cfg Config, store *baseline.Store) *Set {
	s := &Set{store: store}
	if cfg.ZScore.Enabled {
		s.detectors = append(s.detectors, NewZScore(cfg.ZScore.K))
	}
	if cfg.IQR.Enabled {
		s.detectors = append(s.detectors, NewIQR(cfg.IQR.M))
	}
	if cfg.MAD.Enabled {
		s.detectors = append(s.detectors, NewMAD(cfg.MAD.K))
	}
	if cfg.CUSUM.Enabled {
		s.cusum = NewCUSUM(cfg.CUSUM.H, cfg.CUSUM.SlackFactor)
		s.detectors = append(s.detectors, s.cusum)
	}
	return s
}

// Evaluate runs every enabled detector for one (key, value) pair against
// the pre-update snapshot, returning every detector's anomaly result (spec
// §4.4.3's tie-break rule: "all outputs are emitted"). Cold snapshots are
// skipped entirely — detectors double-check this themselves, but guarding
// here avoids the CUSUM state write-back on warm-up samples.
func (s *Set) Evaluate(key telemetry.BaselineKey, value float64, snap baseline.Snapshot) []Result {
	if !snap.IsWarm {
		return nil
	}
	var fired []Result
	for _, d := range s.detectors {
		res, ok := d.Evaluate(value, snap)
		if res.CUSUMUpdated {
			s.store.UpdateCUSUM(key, res.CUSUMPos, res.CUSUMNeg)
		}
		if ok {
			fired = append(fired, res)
		}
	}
	return fired
}
