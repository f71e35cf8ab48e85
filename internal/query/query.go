// Package query implements the read-only collaborator-facing HTTP surface
// of spec §4.7: liveness/readiness, anomaly history, and telemetry
// aggregation. Handlers here never touch the hot path directly — they only
// read snapshots from the baseline store and the in-process anomaly log,
// matching §5's "query endpoints carry caller-provided deadlines... never
// block the hot path."
package query

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/llm-sentinel/sentinel/internal/alert"
	"github.com/llm-sentinel/sentinel/internal/baseline"
	"github.com/llm-sentinel/sentinel/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// PipelineStatus is the subset of internal/ingest.Pipeline the query API
// needs for readiness and process-status reporting, kept as an interface
// here to avoid a query->ingest import cycle.
type PipelineStatus interface {
	WorkerCount() int
	QueueDepth(worker int) int
}

// Handlers bundles the read-only dependencies the Query API serves from.
type Handlers struct {
	Store    *baseline.Store
	Log      *alert.Log
	Pipeline PipelineStatus
	// Ready reports whether the source is connected and the store is
	// initialized or restored (spec §4.7's readiness condition).
	Ready func() bool
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode query response")
	}
}

// HealthLive always returns 200 once the process can serve HTTP at all.
func (h *Handlers) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HealthReady returns 200 only once h.Ready reports the pipeline is up.
func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil && !h.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// anomalyView is the JSON shape for one anomalies-page item (spec §6's
// alert transport record, plus the log's delivery state).
type anomalyView struct {
	AnomalyID       string  `json:"anomaly_id"`
	Timestamp       string  `json:"timestamp"`
	Severity        string  `json:"severity"`
	AnomalyType     string  `json:"anomaly_type"`
	Method          string  `json:"method"`
	ServiceID       string  `json:"service_id"`
	ModelID         string  `json:"model_id"`
	Metric          string  `json:"metric"`
	Observed        float64 `json:"observed"`
	BaselineMean    float64 `json:"baseline_mean"`
	BaselineStdDev  float64 `json:"baseline_stddev"`
	BaselineCount   int     `json:"baseline_count"`
	Score           float64 `json:"score"`
	RootCauseHint   string  `json:"root_cause_hint,omitempty"`
	RemediationHint string  `json:"remediation_hint,omitempty"`
	SourceEventID   string  `json:"source_event_id"`
	State           string  `json:"state"`
	Suppressed      int64   `json:"suppressed"`
}

type anomaliesResponse struct {
	Items      []anomalyView `json:"items"`
	NextCursor int           `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// Anomalies serves GET /api/v1/anomalies (spec §4.7/§6).
func (h *Handlers) Anomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since, until time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since: must be RFC3339", http.StatusBadRequest)
			return
		}
		since = t
	}
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid until: must be RFC3339", http.StatusBadRequest)
			return
		}
		until = t
	}

	limit := 100
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	cursor := 0
	if s := q.Get("cursor"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = n
	}

	result := h.Log.Query(alert.Query{
		Since:    since,
		Until:    until,
		Severity: telemetry.Severity(q.Get("severity")),
		Service:  q.Get("service"),
		Model:    q.Get("model"),
		Limit:    limit,
		Cursor:   cursor,
	})

	items := make([]anomalyView, 0, len(result.Items))
	for _, rec := range result.Items {
		e := rec.Event
		items = append(items, anomalyView{
			AnomalyID:       e.AnomalyID.String(),
			Timestamp:       e.Timestamp.UTC().Format(time.RFC3339),
			Severity:        string(e.Severity),
			AnomalyType:     string(e.AnomalyType),
			Method:          string(e.Method),
			ServiceID:       e.Key.ServiceID,
			ModelID:         e.Key.ModelID,
			Metric:          e.Key.Metric,
			Observed:        e.Observed,
			BaselineMean:    e.Baseline.Mean,
			BaselineStdDev:  e.Baseline.StdDev,
			BaselineCount:   e.Baseline.Count,
			Score:           e.Score,
			RootCauseHint:   e.RootCauseHint,
			RemediationHint: e.RemediationHint,
			SourceEventID:   e.SourceEventID.String(),
			State:           string(rec.State),
			Suppressed:      rec.Suppressed,
		})
	}

	writeJSON(w, http.StatusOK, anomaliesResponse{
		Items:      items,
		NextCursor: result.NextCursor,
		HasMore:    result.HasMore,
	})
}

var validMetrics = map[string]bool{
	telemetry.MetricLatencyMs:    true,
	telemetry.MetricInputTokens:  true,
	telemetry.MetricOutputTokens: true,
	telemetry.MetricTotalTokens:  true,
	telemetry.MetricCostUSD:      true,
	telemetry.MetricErrorRate:    true,
}

type telemetryBucket struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

type telemetryResponse struct {
	Service string            `json:"service"`
	Model   string            `json:"model"`
	Metric  string            `json:"metric"`
	Agg     string            `json:"agg"`
	Buckets []telemetryBucket `json:"buckets"`
}

// Telemetry serves GET /api/v1/telemetry (spec §4.7/§6): server-side
// aggregation (avg/p50/p95/p99) over a metric's rolling baseline window.
//
// The baseline store retains sample values but not a per-sample timestamp
// (spec §4.4.1's window is value-only), so buckets are built by slicing the
// window evenly in arrival order and labeling each slice with an
// interpolated timestamp across [since, until) rather than grouping by a
// true per-sample clock. Operators wanting exact per-sample timestamps
// should read the anomaly log or the storage sink instead.
func (h *Handlers) Telemetry(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	service := q.Get("service")
	model := q.Get("model")
	metric := q.Get("metric")
	if service == "" || model == "" || metric == "" {
		http.Error(w, "service, model, and metric are required", http.StatusBadRequest)
		return
	}
	if !validMetrics[metric] {
		http.Error(w, "unrecognized metric", http.StatusBadRequest)
		return
	}

	agg := q.Get("agg")
	if agg == "" {
		agg = "avg"
	}
	switch agg {
	case "avg", "p50", "p95", "p99":
	default:
		http.Error(w, "agg must be one of avg, p50, p95, p99", http.StatusBadRequest)
		return
	}

	until := time.Now().UTC()
	if s := q.Get("until"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid until: must be RFC3339", http.StatusBadRequest)
			return
		}
		until = t
	}
	since := until.Add(-time.Hour)
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid since: must be RFC3339", http.StatusBadRequest)
			return
		}
		since = t
	}
	if !since.Before(until) {
		http.Error(w, "since must be before until", http.StatusBadRequest)
		return
	}

	numBuckets := 10
	if s := q.Get("buckets"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid buckets", http.StatusBadRequest)
			return
		}
		numBuckets = n
	}

	snap, ok := h.Store.Snapshot(telemetry.BaselineKey{ServiceID: service, ModelID: model, Metric: metric})
	resp := telemetryResponse{Service: service, Model: model, Metric: metric, Agg: agg, Buckets: []telemetryBucket{}}
	if !ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	window := snap.Window()
	bucketSpan := until.Sub(since) / time.Duration(numBuckets)
	sliceSize := (len(window) + numBuckets - 1) / numBuckets
	if sliceSize == 0 {
		sliceSize = 1
	}

	for i := 0; i < numBuckets; i++ {
		lo := i * sliceSize
		if lo >= len(window) {
			break
		}
		hi := lo + sliceSize
		if hi > len(window) {
			hi = len(window)
		}
		slice := window[lo:hi]
		if len(slice) == 0 {
			continue
		}
		resp.Buckets = append(resp.Buckets, telemetryBucket{
			Start: since.Add(time.Duration(i) * bucketSpan).Format(time.RFC3339),
			End:   since.Add(time.Duration(i+1) * bucketSpan).Format(time.RFC3339),
			Value: aggregate(slice, agg),
			Count: len(slice),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func aggregate(values []float64, agg string) float64 {
	switch agg {
	case "p50":
		return percentile(values, 0.50)
	case "p95":
		return percentile(values, 0.95)
	case "p99":
		return percentile(values, 0.99)
	default:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	}
}

// percentile computes a linear-interpolated percentile over an unsorted
// slice, copying it first so the baseline's window is never mutated.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
