// Package delay implements GET/POST /admin/simulate/delay (spec §6 ADD):
// the handler sleeps for the requested number of seconds inside the HTTP
// request, standing in for a slow source read, and reports how long it
// waited. The sleep does not reach the ingestion source or the pipeline's
// queues. Adapted from the teacher's response-delay endpoint.
package delay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// DelayParams holds parameters for the simulate/delay endpoint.
type DelayParams struct {
	Seconds int `json:"seconds"`
}

// DelayHandler sleeps for the requested duration, standing in for a slow
// broker read, then reports how long it actually waited.
func DelayHandler(w http.ResponseWriter, r *http.Request) {
	params := DelayParams{Seconds: 0}

	if r.Method == http.MethodGet {
		if v := r.URL.Query().Get("seconds"); v != "" {
			if s, err := strconv.Atoi(v); err == nil {
				params.Seconds = s
			}
		}
	} else if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("failed to decode delay parameters")
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	if params.Seconds < 0 || params.Seconds > 300 {
		log.Ctx(r.Context()).Warn().Int("seconds", params.Seconds).Msg("invalid delay, clamping to 0")
		params.Seconds = 0
	}

	log.Ctx(r.Context()).Info().Int("seconds", params.Seconds).Msg("simulating slow source read")
	start := time.Now()
	if params.Seconds > 0 {
		time.Sleep(time.Duration(params.Seconds) * time.Second)
	}
	elapsed := time.Since(start)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requested_seconds": params.Seconds,
		"elapsed_ms":        elapsed.Milliseconds(),
	})
}
