// Package respond implements POST /admin/respond (spec §6 ADD): injects
// one synthetic AnomalyEvent through the real Emitter/Dedup/Sink path after
// a configurable delay and with a configurable severity, for exercising
// alert delivery and the HMAC-signed webhook without a real detection.
// Adapted from the teacher's configurable-response endpoint.
package respond

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// RespondParams holds parameters for the admin/respond endpoint.
type RespondParams struct {
	Duration    int     `json:"duration"` // seconds to wait before emitting
	Severity    string  `json:"severity"`
	Method      string  `json:"method"`
	ServiceID   string  `json:"service_id"`
	ModelID     string  `json:"model_id"`
	Metric      string  `json:"metric"`
	Observed    float64 `json:"observed"`
	BaselineAvg float64 `json:"baseline_mean"`
}

// NewRespondHandler builds the /admin/respond handler bound to a live
// emitter.
func NewRespondHandler(emitter *alert.Emitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := RespondParams{
			Severity:  string(telemetry.SeverityWarning),
			Method:    string(telemetry.MethodZScore),
			ServiceID: "admin-respond",
			ModelID:   "synthetic",
			Metric:    telemetry.MetricLatencyMs,
			Observed:  500,
		}

		if r.Method == http.MethodGet {
			q := r.URL.Query()
			if v := q.Get("duration"); v != "" {
				if d, err := strconv.Atoi(v); err == nil {
					params.Duration = d
				}
			}
			if v := q.Get("severity"); v != "" {
				params.Severity = v
			}
		} else if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
				log.Ctx(r.Context()).Error().Err(err).Msg("failed to decode respond parameters")
				http.Error(w, "Invalid JSON body", http.StatusBadRequest)
				return
			}
		}

		switch telemetry.Severity(params.Severity) {
		case telemetry.SeverityInfo, telemetry.SeverityWarning, telemetry.SeverityHigh, telemetry.SeverityCritical:
		default:
			params.Severity = string(telemetry.SeverityWarning)
		}
		if params.Duration < 0 || params.Duration > 300 {
			params.Duration = 0
		}

		log.Ctx(r.Context()).Info().
			Int("duration", params.Duration).
			Str("severity", params.Severity).
			Msg("scheduling synthetic anomaly injection")

		if params.Duration > 0 {
			time.Sleep(time.Duration(params.Duration) * time.Second)
		}

		now := time.Now().UTC()
		anomaly := telemetry.AnomalyEvent{
			AnomalyID:   uuid.New(),
			Timestamp:   now,
			Severity:    telemetry.Severity(params.Severity),
			AnomalyType: telemetry.AnomalyTypeForMetric(params.Metric),
			Method:      telemetry.Method(params.Method),
			Key:         telemetry.BaselineKey{ServiceID: params.ServiceID, ModelID: params.ModelID, Metric: params.Metric},
			Score:       0.9,
			Observed:    params.Observed,
			Baseline:    telemetry.BaselineSummary{Mean: params.BaselineAvg},
			SourceEventID: uuid.New(),
		}

		admitted := emitter.Emit(context.Background(), anomaly, now)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"anomaly_id": anomaly.AnomalyID.String(),
			"admitted":   admitted,
			"severity":   anomaly.Severity,
		})
	}
}
