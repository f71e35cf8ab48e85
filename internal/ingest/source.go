package ingest

import (
	"context"
	"time"

	"github.com/llm-sentinel/sentinel/internal/backoff"
	"github.com/llm-sentinel/sentinel/internal/errs"
	"github.com/rs/zerolog/log"
)

// Source is the Event Source Adapter contract (spec §4.1): a long-running
// operation that reads raw records from a broker and hands each to submit.
// Run returns only on shutdown (ctx.Done()) or an unrecoverable source
// failure.
type Source interface {
	Run(ctx context.Context, submit func(raw []byte, now time.Time) error) error
}

// ChannelSource is a concrete Source backed by a Go channel, standing in
// for a real broker client (Kafka/NATS/etc. consumer) — the shape the
// teacher's own request-generation tools use for synthetic local traffic,
// generalized here to the real ingestion contract. Transient read errors
// are retried with exponential backoff (spec §4.1's schedule); decode
// failures are never retried, since Submit itself reports those via
// metrics and returns them un-retried.
type ChannelSource struct {
	records chan []byte
	policy  backoff.Policy
}

// NewChannelSource builds a ChannelSource reading from records until it is
// closed or ctx is cancelled.
func NewChannelSource(records chan []byte) *ChannelSource {
	return &ChannelSource{records: records, policy: backoff.SourceDefault()}
}

func (s *ChannelSource) Run(ctx context.Context, submit func(raw []byte, now time.Time) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-s.records:
			if !ok {
				return nil
			}
			for attempt := 0; ; attempt++ {
				err := submit(raw, time.Now().UTC())
				if err == nil || !isRetryableSourceError(err) {
					// Decode/validation failures are reported and counted by
					// submit itself; the adapter just moves on to the next
					// record without retrying it.
					break
				}
				log.Warn().Err(err).Int("attempt", attempt+1).Msg("transient source error; backing off")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.policy.Duration(attempt)):
				}
			}
		}
	}
}

// isRetryableSourceError reports whether err represents a transient source
// condition (as opposed to a rejected/malformed record). Submit's errors
// are validation/decode errors by construction — genuinely transient
// broker errors would be a distinct *errs.Error{Kind: KindSourceTrans},
// which a real broker client would return from a lower-level read, not
// from Submit.
func isRetryableSourceError(err error) bool {
	if ve, ok := err.(*errs.Error); ok {
		return ve.Kind == errs.KindSourceTrans
	}
	return false
}
