package telemetry

import "testing"

func TestDecodeNativeJSON(t *testing.T) {
	raw := []byte(`{
		"event_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		"timestamp": "2026-01-01T00:00:00Z",
		"service_id": "svcA",
		"model_id": "modelX",
		"latency_ms": 120.5,
		"input_tokens": 10,
		"output_tokens": 20,
		"total_tokens": 30,
		"cost_usd": 0.002,
		"status": "success",
		"tags": {"env": "prod"}
	}`)

	res, err := Decode(FormatJSON, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Event.ServiceID != "svcA" || res.Event.ModelID != "modelX" {
		t.Fatalf("got %+v", res.Event)
	}
	if !res.HasDeclaredTotal || res.DeclaredTotal != 30 {
		t.Fatalf("expected declared total 30, got %+v", res)
	}
	if res.Event.Tags["env"] != "prod" {
		t.Fatalf("expected tag passthrough, got %+v", res.Event.Tags)
	}
}

func TestDecodeNativeJSONUnknownFieldsIgnored(t *testing.T) {
	raw := []byte(`{
		"event_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		"timestamp": "2026-01-01T00:00:00Z",
		"service_id": "svcA",
		"model_id": "modelX",
		"status": "success",
		"future_field_not_in_spec": 42
	}`)
	if _, err := Decode(FormatJSON, raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeNativeJSONMissingEventIDRejected(t *testing.T) {
	raw := []byte(`{"timestamp": "2026-01-01T00:00:00Z", "service_id": "svcA", "model_id": "modelX", "status": "success"}`)
	if _, err := Decode(FormatJSON, raw); err == nil {
		t.Fatalf("expected decode error for missing event_id")
	}
}

func TestDecodeOTLPAttributeSpan(t *testing.T) {
	raw := []byte(`{
		"trace_id": "t1",
		"span_id": "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		"start_time_unix_nano": "1700000000000000000",
		"end_time_unix_nano": "1700000000150000000",
		"status": {"code": "STATUS_CODE_ERROR"},
		"attributes": {
			"service.name": "svcA",
			"gen_ai.request.model": "modelX",
			"gen_ai.usage.input_tokens": "12",
			"gen_ai.usage.output_tokens": "34",
			"gen_ai.usage.cost": "0.05"
		}
	}`)

	res, err := Decode(FormatOTLP, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := res.Event
	if e.ServiceID != "svcA" || e.ModelID != "modelX" {
		t.Fatalf("got %+v", e)
	}
	if e.InputTokens != 12 || e.OutputTokens != 34 {
		t.Fatalf("got %+v", e)
	}
	if e.CostUSD != 0.05 {
		t.Fatalf("got cost %v", e.CostUSD)
	}
	if e.LatencyMs != 150 {
		t.Fatalf("expected 150ms latency, got %v", e.LatencyMs)
	}
	if e.Status != StatusError {
		t.Fatalf("expected error status, got %v", e.Status)
	}
}
