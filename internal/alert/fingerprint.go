package alert

import (
	"fmt"
	"hash/fnv"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Fingerprint is a stable hash over (service_id, model_id, anomaly_type,
// method, severity), used only for deduplication (spec §3/§4.5).
type Fingerprint uint64

// ComputeFingerprint implements the GLOSSARY's fingerprint definition.
func ComputeFingerprint(e telemetry.AnomalyEvent) Fingerprint {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s",
		e.Key.ServiceID, e.Key.ModelID, e.AnomalyType, e.Method, e.Severity)
	return Fingerprint(h.Sum64())
}
