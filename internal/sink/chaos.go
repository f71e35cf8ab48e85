package sink

import (
	"context"
	"sync"
	"time"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Chaos wraps a Sink and can be forced into permanent failure for a bounded
// duration on operator request (spec §6 ADD's /admin/chaos/sink), to
// exercise the emitter's handling of a failed sink write without actually
// taking the backing service down. While active, WriteOne returns Permanent
// without calling the wrapped sink, so that sink's own retries and counters
// are not exercised.
type Chaos struct {
	inner Sink

	mu       sync.Mutex
	until    time.Time
	disabled bool
}

// NewChaos wraps inner in a toggleable failure injector.
func NewChaos(inner Sink) *Chaos {
	return &Chaos{inner: inner}
}

func (c *Chaos) Name() string { return c.inner.Name() }

// Trigger forces every WriteOne call to return Permanent until duration has
// elapsed.
func (c *Chaos) Trigger(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	c.until = time.Now().Add(duration)
}

// Reset cancels any active failure injection immediately.
func (c *Chaos) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
}

func (c *Chaos) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disabled {
		return false
	}
	if time.Now().After(c.until) {
		c.disabled = false
		return false
	}
	return true
}

func (c *Chaos) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	if c.active() {
		return Permanent
	}
	return c.inner.WriteOne(ctx, e)
}
