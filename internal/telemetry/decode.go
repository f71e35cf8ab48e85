package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Format names the two on-the-wire shapes spec §6 recognizes.
type Format string

const (
	FormatJSON Format = "json"
	FormatOTLP Format = "otlp"
)

// nativeWire mirrors the native JSON shape of spec §6. Unknown fields are
// ignored by encoding/json's default decode behavior; missing required
// fields are caught by Validate, not here, except where the field is
// required to even construct a TelemetryEvent (event_id, timestamp).
type nativeWire struct {
	EventID       string            `json:"event_id"`
	Timestamp     string            `json:"timestamp"`
	ServiceID     string            `json:"service_id"`
	ModelID       string            `json:"model_id"`
	LatencyMs     float64           `json:"latency_ms"`
	InputTokens   int64             `json:"input_tokens"`
	OutputTokens  int64             `json:"output_tokens"`
	TotalTokens   *int64            `json:"total_tokens"`
	CostUSD       float64           `json:"cost_usd"`
	Status        string            `json:"status"`
	PromptText    string            `json:"prompt_text"`
	ResponseText  string            `json:"response_text"`
	UserID        string            `json:"user_id"`
	CorrelationID string            `json:"correlation_id"`
	Tags          map[string]string `json:"tags"`
}

// DecodeResult carries the decoded event plus the declared total_tokens
// field when present, since that invariant check happens one layer up
// (internal/telemetry.ValidateTotalTokens) rather than inside decode.
type DecodeResult struct {
	Event              TelemetryEvent
	DeclaredTotal      int64
	HasDeclaredTotal   bool
}

// Decode parses one record in the given format. Decode failures are never
// retried (spec §4.1) — the caller counts and drops.
func Decode(format Format, raw []byte) (DecodeResult, error) {
	switch format {
	case FormatOTLP:
		return decodeOTLP(raw)
	case FormatJSON, "":
		return decodeNative(raw)
	default:
		return DecodeResult{}, fmt.Errorf("telemetry: unrecognized decode format %q", format)
	}
}

func decodeNative(raw []byte) (DecodeResult, error) {
	var w nativeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: decode native json: %w", err)
	}
	id, err := uuid.Parse(w.EventID)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: invalid event_id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: invalid timestamp: %w", err)
	}
	res := DecodeResult{
		Event: TelemetryEvent{
			EventID:       id,
			Timestamp:     ts.UTC(),
			ServiceID:     w.ServiceID,
			ModelID:       w.ModelID,
			LatencyMs:     w.LatencyMs,
			InputTokens:   w.InputTokens,
			OutputTokens:  w.OutputTokens,
			CostUSD:       w.CostUSD,
			Status:        Status(w.Status),
			PromptText:    w.PromptText,
			ResponseText:  w.ResponseText,
			UserID:        w.UserID,
			CorrelationID: w.CorrelationID,
			Tags:          w.Tags,
		},
	}
	if w.TotalTokens != nil {
		res.DeclaredTotal = *w.TotalTokens
		res.HasDeclaredTotal = true
	}
	return res, nil
}

// otlpSpan is the minimal attribute-bag shape spec §6 describes: span
// duration plus a flat attributes map carrying the gen_ai.* semantics. The
// spec defines the shape in JSON/attribute terms, not a binary OTLP
// envelope, so no protobuf/gRPC OTLP client is needed here (see DESIGN.md).
type otlpSpan struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	StartTimeUnixNano string       `json:"start_time_unix_nano"`
	EndTimeUnixNano   string       `json:"end_time_unix_nano"`
	Status       struct {
		Code string `json:"code"`
	} `json:"status"`
	Attributes map[string]string `json:"attributes"`
}

func decodeOTLP(raw []byte) (DecodeResult, error) {
	var s otlpSpan
	if err := json.Unmarshal(raw, &s); err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: decode otlp span: %w", err)
	}
	attrs := s.Attributes
	eventID := attrs["event.id"]
	if eventID == "" {
		eventID = s.SpanID
	}
	id, err := uuid.Parse(eventID)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: invalid otlp event identifier: %w", err)
	}

	startNanos, err := strconv.ParseInt(s.StartTimeUnixNano, 10, 64)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("telemetry: invalid otlp start_time_unix_nano: %w", err)
	}
	var latencyMs float64
	if s.EndTimeUnixNano != "" {
		endNanos, err := strconv.ParseInt(s.EndTimeUnixNano, 10, 64)
		if err != nil {
			return DecodeResult{}, fmt.Errorf("telemetry: invalid otlp end_time_unix_nano: %w", err)
		}
		latencyMs = float64(endNanos-startNanos) / 1e6
	}
	ts := time.Unix(0, startNanos).UTC()

	inputTokens, _ := strconv.ParseInt(attrs["gen_ai.usage.input_tokens"], 10, 64)
	outputTokens, _ := strconv.ParseInt(attrs["gen_ai.usage.output_tokens"], 10, 64)
	cost, _ := strconv.ParseFloat(attrs["gen_ai.usage.cost"], 64)

	status := StatusSuccess
	switch s.Status.Code {
	case "STATUS_CODE_ERROR", "error":
		status = StatusError
	case "STATUS_CODE_TIMEOUT", "timeout":
		status = StatusTimeout
	}

	e := TelemetryEvent{
		EventID:      id,
		Timestamp:    ts,
		ServiceID:    attrs["service.name"],
		ModelID:      attrs["gen_ai.request.model"],
		LatencyMs:    latencyMs,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Status:       status,
		Tags:         map[string]string{},
	}
	for k, v := range attrs {
		switch k {
		case "service.name", "gen_ai.request.model", "gen_ai.usage.input_tokens",
			"gen_ai.usage.output_tokens", "gen_ai.usage.cost", "event.id":
			continue
		default:
			e.Tags[k] = v
		}
	}
	return DecodeResult{Event: e}, nil
}
