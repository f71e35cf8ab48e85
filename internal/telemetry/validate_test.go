package telemetry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/llm-sentinel/sentinel/internal/errs"
)

func baseEvent() *TelemetryEvent {
	return &TelemetryEvent{
		EventID:      uuid.New(),
		Timestamp:    time.Now().UTC(),
		ServiceID:    "svcA",
		ModelID:      "modelX",
		LatencyMs:    10,
		InputTokens:  5,
		OutputTokens: 5,
		CostUSD:      0.01,
		Status:       StatusSuccess,
	}
}

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	if err := v.Validate(e, time.Now().UTC()); err != nil {
		t.Fatalf("expected valid event, got %v", err)
	}
}

func TestValidateRejectsEmptyServiceID(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	e.ServiceID = ""
	err := v.Validate(e, time.Now().UTC())
	assertReason(t, err, ReasonEmptyServiceID)
}

func TestValidateRejectsNegativeLatency(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	e.LatencyMs = -1
	assertReason(t, v.Validate(e, time.Now().UTC()), ReasonNegativeLatency)
}

func TestValidateRejectsInvalidStatus(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	e.Status = "pending"
	assertReason(t, v.Validate(e, time.Now().UTC()), ReasonInvalidStatus)
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	now := time.Now().UTC()
	e.Timestamp = now.Add(5 * time.Minute)
	assertReason(t, v.Validate(e, now), ReasonFutureTimestamp)
}

func TestValidateRejectsStaleTimestamp(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	e := baseEvent()
	now := time.Now().UTC()
	e.Timestamp = now.Add(-48 * time.Hour)
	assertReason(t, v.Validate(e, now), ReasonStaleTimestamp)
}

func TestValidateTotalTokensMismatch(t *testing.T) {
	e := baseEvent()
	err := ValidateTotalTokens(e, 999, true)
	assertReason(t, err, ReasonTokenMismatch)
}

func TestValidateTotalTokensMatchIsNil(t *testing.T) {
	e := baseEvent()
	if err := ValidateTotalTokens(e, e.TotalTokens(), true); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func assertReason(t *testing.T, err error, want string) {
	t.Helper()
	ve, ok := err.(*errs.Error)
	if !ok {
		t.Fatalf("expected *errs.Error with reason %q, got %v", want, err)
	}
	if ve.Reason != want {
		t.Fatalf("expected reason %q, got %q", want, ve.Reason)
	}
}
