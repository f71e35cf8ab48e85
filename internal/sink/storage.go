package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// wireRecord is the JSON shape spec §6 mandates for alert transport/storage
// records.
type wireRecord struct {
	AnomalyID       string  `json:"anomaly_id"`
	Timestamp       string  `json:"timestamp"`
	Severity        string  `json:"severity"`
	AnomalyType     string  `json:"anomaly_type"`
	Method          string  `json:"method"`
	ServiceID       string  `json:"service_id"`
	ModelID         string  `json:"model_id"`
	Metric          string  `json:"metric"`
	Observed        float64 `json:"observed"`
	Baseline        wireBaseline `json:"baseline"`
	Score           float64 `json:"score"`
	RootCauseHint   string  `json:"root_cause_hint,omitempty"`
	RemediationHint string  `json:"remediation_hint,omitempty"`
	SourceEventID   string  `json:"source_event_id"`
}

type wireBaseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

func toWireRecord(e telemetry.AnomalyEvent) wireRecord {
	return wireRecord{
		AnomalyID:       e.AnomalyID.String(),
		Timestamp:       e.Timestamp.UTC().Format(time.RFC3339),
		Severity:        string(e.Severity),
		AnomalyType:     string(e.AnomalyType),
		Method:          string(e.Method),
		ServiceID:       e.Key.ServiceID,
		ModelID:         e.Key.ModelID,
		Metric:          e.Key.Metric,
		Observed:        e.Observed,
		Baseline:        wireBaseline{Mean: e.Baseline.Mean, StdDev: e.Baseline.StdDev, Count: e.Baseline.Count},
		Score:           e.Score,
		RootCauseHint:   e.RootCauseHint,
		RemediationHint: e.RemediationHint,
		SourceEventID:   e.SourceEventID.String(),
	}
}

// Storage is the durable anomaly-storage sink (spec §4.5 forwarding step
// 1). It POSTs the wire record to a configured HTTP endpoint; any 2xx
// response is Ok, a 5xx or network error is Transient, and a 4xx response
// is Permanent (the record is malformed relative to the store's contract
// and will never succeed on retry).
type Storage struct {
	URL    string
	Client *http.Client
}

// NewStorage builds a Storage sink posting to url with the given timeout.
func NewStorage(url string, timeout time.Duration) *Storage {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Storage{URL: url, Client: &http.Client{Timeout: timeout}}
}

func (s *Storage) Name() string { return "storage" }

func (s *Storage) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	body, err := json.Marshal(toWireRecord(e))
	if err != nil {
		return Permanent
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, jsonReader(body))
	if err != nil {
		return Permanent
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Transient
		}
		return Transient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OK
	case resp.StatusCode >= 500:
		return Transient
	default:
		return Permanent
	}
}
