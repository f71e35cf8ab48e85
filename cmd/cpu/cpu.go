// Package cpu implements the /admin/simulate/load diagnostic endpoint
// (spec §6 ADD): a synthetic burst of telemetry events fed directly into
// the ingestion pipeline, for exercising the detectors without waiting on
// live traffic. Adapted from the teacher's CPU-load generator — the four
// intensity tiers are kept, each now fixing a burst size (there is no
// duration parameter), and "work" now means submitting events rather than
// burning CPU cycles.
package cpu

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/ingest"
	"github.com/rs/zerolog/log"
)

// Intensity controls the synthetic baseline and the spread of generated
// samples, same four tiers the teacher used for CPU stress.
type Intensity string

const (
	Light   Intensity = "light"
	Medium  Intensity = "medium"
	Heavy   Intensity = "heavy"
	Extreme Intensity = "extreme"
)

// profile describes one intensity tier's synthetic latency distribution
// and burst size.
type profile struct {
	Count        int
	BaseLatency  float64
	SpreadFactor float64
}

var profiles = map[Intensity]profile{
	Light:   {Count: 20, BaseLatency: 100, SpreadFactor: 0.1},
	Medium:  {Count: 100, BaseLatency: 250, SpreadFactor: 0.2},
	Heavy:   {Count: 500, BaseLatency: 500, SpreadFactor: 0.4},
	Extreme: {Count: 2000, BaseLatency: 1000, SpreadFactor: 0.8},
}

// LoadParams holds parameters for the simulate/load endpoint.
type LoadParams struct {
	Intensity string  `json:"intensity"`
	ServiceID string  `json:"service_id"`
	ModelID   string  `json:"model_id"`
	Outliers  float64 `json:"outlier_fraction"` // fraction of samples seeded far outside the baseline
}

// LoadResult reports what the burst produced. HeapAllocMB carries forward
// the teacher's memory-footprint reporting (cmd/memory's GetMemoryStats
// idiom), since this endpoint is the closest analogue left after
// cmd/memory's own allocation-simulation feature had no SPEC_FULL.md home.
type LoadResult struct {
	Intensity   string  `json:"intensity"`
	ServiceID   string  `json:"service_id"`
	ModelID     string  `json:"model_id"`
	Submitted   int     `json:"submitted"`
	Rejected    int     `json:"rejected"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
}

// NewLoadHandler builds the /admin/simulate/load handler bound to a live
// pipeline.
func NewLoadHandler(pipeline *ingest.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := LoadParams{Intensity: "medium", ServiceID: "load-test", ModelID: "synthetic"}

		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if v := q.Get("intensity"); v != "" {
				params.Intensity = v
			}
			if v := q.Get("service_id"); v != "" {
				params.ServiceID = v
			}
			if v := q.Get("model_id"); v != "" {
				params.ModelID = v
			}
			if v := q.Get("outlier_fraction"); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					params.Outliers = f
				}
			}
		} else if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("failed to decode load parameters")
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		prof, ok := profiles[Intensity(params.Intensity)]
		if !ok {
			log.Ctx(r.Context()).Warn().Str("intensity", params.Intensity).Msg("unknown intensity, defaulting to medium")
			prof = profiles[Medium]
			params.Intensity = string(Medium)
		}
		if params.Outliers < 0 || params.Outliers > 1 {
			params.Outliers = 0
		}

		result := LoadResult{Intensity: params.Intensity, ServiceID: params.ServiceID, ModelID: params.ModelID}
		now := time.Now().UTC()
		for i := 0; i < prof.Count; i++ {
			latency := prof.BaseLatency + prof.BaseLatency*prof.SpreadFactor*(rand.Float64()*2-1)
			if params.Outliers > 0 && rand.Float64() < params.Outliers {
				latency *= 5
			}
			raw, _ := json.Marshal(map[string]interface{}{
				"event_id":      uuid.New().String(),
				"timestamp":     now.Format(time.RFC3339),
				"service_id":    params.ServiceID,
				"model_id":      params.ModelID,
				"latency_ms":    latency,
				"input_tokens":  50,
				"output_tokens": 50,
				"cost_usd":      0.001,
				"status":        "success",
			})
			if err := pipeline.Submit(raw, now); err != nil {
				result.Rejected++
				continue
			}
			result.Submitted++
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		result.HeapAllocMB = float64(mem.HeapAlloc) / 1024 / 1024

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(result)
	}
}
