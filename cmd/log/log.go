// Package log implements the /admin/simulate/samples diagnostic endpoint
// (spec §6 ADD): feeds N synthetic samples for one baseline key at a
// configurable magnitude, to manually drive a detector across its warm-up
// and threshold boundaries. Adapted from the teacher's synthetic log
// generator — level/size/interval become metric/magnitude/count.
package log

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/ingest"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// SamplesParams holds parameters for the simulate/samples endpoint.
type SamplesParams struct {
	ServiceID string  `json:"service_id"`
	ModelID   string  `json:"model_id"`
	Metric    string  `json:"metric"`
	Count     int     `json:"count"`
	Value     float64 `json:"value"`      // the value fed for every warm-up sample
	SpikeAt   int     `json:"spike_at"`   // 0 means no spike; otherwise the 1-indexed sample that uses SpikeValue instead
	SpikeVal  float64 `json:"spike_value"`
}

// SamplesResult reports how many samples were fed and how many detector
// results fired across them (one sample can fire several detectors).
type SamplesResult struct {
	ServiceID     string `json:"service_id"`
	ModelID       string `json:"model_id"`
	Metric        string `json:"metric"`
	Fed           int    `json:"fed"`
	AnomaliesFired int   `json:"anomalies_fired"`
}

// NewSamplesHandler builds the /admin/simulate/samples handler bound to a
// live pipeline.
func NewSamplesHandler(pipeline *ingest.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := SamplesParams{ServiceID: "sample-test", ModelID: "synthetic", Metric: telemetry.MetricLatencyMs, Count: 50, Value: 100}

		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if v := q.Get("service_id"); v != "" {
				params.ServiceID = v
			}
			if v := q.Get("model_id"); v != "" {
				params.ModelID = v
			}
			if v := q.Get("metric"); v != "" {
				params.Metric = v
			}
			if v := q.Get("count"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					params.Count = n
				}
			}
			if v := q.Get("value"); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					params.Value = f
				}
			}
			if v := q.Get("spike_at"); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					params.SpikeAt = n
				}
			}
			if v := q.Get("spike_value"); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					params.SpikeVal = f
				}
			}
		} else if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("failed to decode samples parameters")
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		if params.Count <= 0 || params.Count > 100000 {
			params.Count = 50
		}

		key := telemetry.BaselineKey{ServiceID: params.ServiceID, ModelID: params.ModelID, Metric: params.Metric}
		result := SamplesResult{ServiceID: params.ServiceID, ModelID: params.ModelID, Metric: params.Metric}
		now := time.Now().UTC()

		for i := 1; i <= params.Count; i++ {
			value := params.Value
			if params.SpikeAt > 0 && i == params.SpikeAt {
				value = params.SpikeVal
			}
			emitted := pipeline.EvaluateSample(key, value, now, uuid.New())
			result.Fed++
			result.AnomaliesFired += len(emitted)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(result)
	}
}
