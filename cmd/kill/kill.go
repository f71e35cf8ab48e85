// Package kill implements POST /admin/chaos/sink (spec §6 ADD): forces a
// named sink into permanent-failure mode for a bounded duration, to
// exercise the degraded-mode counters and retry-exhaustion path. Adapted
// from the teacher's process-termination endpoint — instead of killing the
// process, it "kills" one sink's ability to deliver.
package kill

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/llm-sentinel/sentinel/internal/sink"
	"github.com/rs/zerolog/log"
)

// ChaosParams holds parameters for the chaos/sink endpoint.
type ChaosParams struct {
	Sink     string `json:"sink"`     // storage, transport, or counters
	Duration int    `json:"duration"` // seconds the sink stays broken
}

// NewChaosHandler builds the /admin/chaos/sink handler bound to the live
// sink set.
func NewChaosHandler(sinks map[string]*sink.Chaos) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := ChaosParams{Duration: 30}

		if r.Method == http.MethodGet {
			q := r.URL.Query()
			params.Sink = q.Get("sink")
			if v := q.Get("duration"); v != "" {
				if d, err := strconv.Atoi(v); err == nil {
					params.Duration = d
				}
			}
		} else if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("failed to decode chaos parameters")
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		if params.Duration <= 0 || params.Duration > 3600 {
			params.Duration = 30
		}

		target, ok := sinks[params.Sink]
		if !ok {
			http.Error(w, "unknown sink: must be one of storage, transport, counters", http.StatusBadRequest)
			return
		}

		target.Trigger(time.Duration(params.Duration) * time.Second)
		log.Ctx(r.Context()).Warn().Str("sink", params.Sink).Int("duration", params.Duration).Msg("sink forced into permanent-failure mode")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sink":     params.Sink,
			"duration": params.Duration,
			"status":   "failing",
		})
	}
}
