// Package sink implements the three alert sink adapters (storage,
// transport, counters) behind a common retrying contract (spec §4.6).
package sink

import (
	"context"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Outcome is a sink write's result.
type Outcome int

const (
	OK Outcome = iota
	Transient
	Permanent
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Sink is the contract every alert destination implements. WriteOne must
// not block indefinitely — callers apply a per-call timeout (spec §5,
// default 5s).
type Sink interface {
	Name() string
	WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome
}
