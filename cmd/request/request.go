// Package request implements GET/POST /admin/echo (spec §6 ADD): decodes a
// posted TelemetryEvent payload through Validate+Sanitize and echoes the
// result, including any rejection reason, without committing it to any
// baseline. An operator's dry-run tool for wire-format debugging. Adapted
// from the teacher's request-echo endpoint.
package request

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/llm-sentinel/sentinel/internal/ingest"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// EchoResult reports what the decode/validate/sanitize pipeline did with
// one posted record, without submitting it anywhere.
type EchoResult struct {
	Accepted     bool                      `json:"accepted"`
	RejectReason string                    `json:"reject_reason,omitempty"`
	DecodedEvent *telemetry.TelemetryEvent `json:"decoded_event,omitempty"`
	Format       string                    `json:"format"`
}

// NewEchoHandler builds the /admin/echo handler bound to a live pipeline's
// validator and sanitizer.
func NewEchoHandler(pipeline *ingest.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("failed to read echo request body")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		format := telemetry.FormatJSON
		if f := r.URL.Query().Get("format"); f == "otlp" {
			format = telemetry.FormatOTLP
		}

		result := EchoResult{Format: string(format)}
		decoded, err := telemetry.Decode(format, body)
		if err != nil {
			result.RejectReason = "decode_error: " + err.Error()
			writeEchoResult(w, result)
			return
		}

		now := time.Now().UTC()
		if err := pipeline.Validator().Validate(&decoded.Event, now); err != nil {
			result.RejectReason = err.Error()
			writeEchoResult(w, result)
			return
		}
		if decoded.HasDeclaredTotal {
			if err := telemetry.ValidateTotalTokens(&decoded.Event, decoded.DeclaredTotal, true); err != nil {
				result.RejectReason = err.Error()
				writeEchoResult(w, result)
				return
			}
		}

		pipeline.Sanitizer().Sanitize(&decoded.Event)
		result.Accepted = true
		result.DecodedEvent = &decoded.Event
		writeEchoResult(w, result)
	}
}

func writeEchoResult(w http.ResponseWriter, result EchoResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}
