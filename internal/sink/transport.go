package sink

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/llm-sentinel/sentinel/internal/telemetry"
)

// Transport is the alert-delivery sink. It routes by severity to one of
// four topic-shaped URLs (alerts.info/warning/high/critical per spec §6)
// and signs the body with HMAC-SHA256 in an X-Signature header. No
// ecosystem HMAC library appears anywhere in the example pack, so this
// uses crypto/hmac and crypto/sha256 directly.
type Transport struct {
	BaseURL string // topic suffix is appended, e.g. {BaseURL}/alerts.critical
	Secret  []byte
	Client  *http.Client
}

// NewTransport builds a Transport posting under baseURL, signing with secret.
func NewTransport(baseURL string, secret []byte, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Transport{BaseURL: baseURL, Secret: secret, Client: &http.Client{Timeout: timeout}}
}

func (t *Transport) Name() string { return "transport" }

func (t *Transport) topicFor(sev telemetry.Severity) string {
	switch sev {
	case telemetry.SeverityInfo:
		return "alerts.info"
	case telemetry.SeverityWarning:
		return "alerts.warning"
	case telemetry.SeverityHigh:
		return "alerts.high"
	case telemetry.SeverityCritical:
		return "alerts.critical"
	default:
		return "alerts.info"
	}
}

func (t *Transport) sign(body []byte) string {
	mac := hmac.New(sha256.New, t.Secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *Transport) WriteOne(ctx context.Context, e telemetry.AnomalyEvent) Outcome {
	body, err := json.Marshal(toWireRecord(e))
	if err != nil {
		return Permanent
	}
	url := fmt.Sprintf("%s/%s", t.BaseURL, t.topicFor(e.Severity))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, jsonReader(body))
	if err != nil {
		return Permanent
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", t.sign(body))

	resp, err := t.Client.Do(req)
	if err != nil {
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
