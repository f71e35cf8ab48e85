package telemetry

import "testing"

// TestSanitizeRedactsEmailAndCard is scenario S6 from spec §8.
func TestSanitizeRedactsEmailAndCard(t *testing.T) {
	s := NewSanitizer(nil)
	e := &TelemetryEvent{
		PromptText: "contact me at alice@example.com or 4111 1111 1111 1111",
		LatencyMs:  12.5,
		InputTokens: 3,
	}
	s.Sanitize(e)

	want := "contact me at [EMAIL] or [CARD]"
	if e.PromptText != want {
		t.Fatalf("got %q want %q", e.PromptText, want)
	}
	if e.LatencyMs != 12.5 || e.InputTokens != 3 {
		t.Fatalf("sanitize must not touch non-text fields, got %+v", e)
	}
}

func TestSanitizeRedactsSSN(t *testing.T) {
	s := NewSanitizer(nil)
	got := s.redact("ssn is 123-45-6789")
	if got != "ssn is [SSN]" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeRedactsAPIKeyPrefix(t *testing.T) {
	s := NewSanitizer(nil)
	got := s.redact("key: sk-abcdefghijklmnopqrstuvwxyz")
	if got != "key: [REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeExtraPrefix(t *testing.T) {
	s := NewSanitizer([]string{"internal-"})
	got := s.redact("token internal-0123456789012345678901")
	if got != "token [REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	s := NewSanitizer(nil)
	text := "email alice@example.com card 4111111111111111 ssn 123-45-6789"
	once := s.redact(text)
	twice := s.redact(once)
	if once != twice {
		t.Fatalf("sanitize must be idempotent: %q != %q", once, twice)
	}
}

func TestSanitizeEmptyText(t *testing.T) {
	s := NewSanitizer(nil)
	if got := s.redact(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
