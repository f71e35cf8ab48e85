package telemetry

import (
	"time"

	"github.com/llm-sentinel/sentinel/internal/errs"
)

// Validation rejection reasons, each distinguishable at the surface per
// spec §4.2/§7.
const (
	ReasonEmptyServiceID   = "empty_service_id"
	ReasonEmptyModelID     = "empty_model_id"
	ReasonNegativeLatency  = "negative_latency"
	ReasonNegativeTokens   = "negative_tokens"
	ReasonNegativeCost     = "negative_cost"
	ReasonInvalidStatus    = "invalid_status"
	ReasonFutureTimestamp  = "future_timestamp"
	ReasonStaleTimestamp   = "stale_timestamp"
	ReasonTokenMismatch    = "token_total_mismatch"
)

// ValidatorConfig controls the timestamp-skew and retention bounds enforced
// by Validate (spec §3: "not in the future by more than a configurable
// skew" / "not older than the retention horizon").
type ValidatorConfig struct {
	FutureSkew       time.Duration
	RetentionHorizon time.Duration
}

// DefaultValidatorConfig matches spec §3's defaults (60s skew, 24h horizon).
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		FutureSkew:       60 * time.Second,
		RetentionHorizon: 24 * time.Hour,
	}
}

// Validator enforces the invariants of §3. It holds no mutable state and is
// safe for concurrent use across ingestion workers.
type Validator struct {
	cfg ValidatorConfig
}

func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate returns a *errs.Error (Kind=KindValidation) with a stable Reason
// on the first failing rule, or nil if the event satisfies every invariant.
func (v *Validator) Validate(e *TelemetryEvent, now time.Time) error {
	if e.ServiceID == "" {
		return errs.Validation(ReasonEmptyServiceID)
	}
	if e.ModelID == "" {
		return errs.Validation(ReasonEmptyModelID)
	}
	if e.LatencyMs < 0 {
		return errs.Validation(ReasonNegativeLatency)
	}
	if e.InputTokens < 0 || e.OutputTokens < 0 {
		return errs.Validation(ReasonNegativeTokens)
	}
	if e.CostUSD < 0 {
		return errs.Validation(ReasonNegativeCost)
	}
	switch e.Status {
	case StatusSuccess, StatusError, StatusTimeout:
	default:
		return errs.Validation(ReasonInvalidStatus)
	}
	skew := v.cfg.FutureSkew
	if skew <= 0 {
		skew = 60 * time.Second
	}
	horizon := v.cfg.RetentionHorizon
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	if e.Timestamp.After(now.Add(skew)) {
		return errs.Validation(ReasonFutureTimestamp)
	}
	if e.Timestamp.Before(now.Add(-horizon)) {
		return errs.Validation(ReasonStaleTimestamp)
	}
	return nil
}

// ValidateTotalTokens checks the optional invariant that a wire-supplied
// total_tokens field equals input+output, when the caller tracked one
// separately from the derived TotalTokens() (native JSON carries an
// explicit total_tokens field that Decode reports in
// DecodeResult.DeclaredTotal and HasDeclaredTotal).
func ValidateTotalTokens(e *TelemetryEvent, declaredTotal int64, hasDeclared bool) error {
	if !hasDeclared {
		return nil
	}
	if declaredTotal != e.TotalTokens() {
		return errs.Validation(ReasonTokenMismatch)
	}
	return nil
}
