package telemetry

import (
	"regexp"
	"strings"
)

// Sanitizer redacts the fixed set of PII/secret patterns from text fields
// (prompt_text, response_text) before any other component observes the
// event. Pattern shape is grounded on the pack's anonymizer (compiled regex
// + replacement token per kind), trimmed to the fixed, non-configurable set
// spec §4.2/§6 mandates plus operator-supplied extra API-key prefixes.
type Sanitizer struct {
	email      *regexp.Regexp
	card       *regexp.Regexp
	ssn        *regexp.Regexp
	keyPrefixes []string
}

var (
	defaultEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	defaultCardRe  = regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)
	defaultSSNRe   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// recognizedKeyPrefixes are the built-in API-key prefixes from spec §6.
var recognizedKeyPrefixes = []string{"sk-", "pk-", "api-", "bearer "}

// NewSanitizer builds a Sanitizer with the fixed redaction set plus any
// operator-configured extra key prefixes (sanitization.extra_key_prefixes).
func NewSanitizer(extraKeyPrefixes []string) *Sanitizer {
	prefixes := make([]string, 0, len(recognizedKeyPrefixes)+len(extraKeyPrefixes))
	prefixes = append(prefixes, recognizedKeyPrefixes...)
	prefixes = append(prefixes, extraKeyPrefixes...)
	return &Sanitizer{
		email:       defaultEmailRe,
		card:        defaultCardRe,
		ssn:         defaultSSNRe,
		keyPrefixes: prefixes,
	}
}

// Sanitize mutates e.PromptText and e.ResponseText in place, leaving every
// other field bit-equal (testable property 5). Idempotent (property 4): a
// second call on already-redacted text is a no-op because the redaction
// tokens themselves never match any pattern.
func (s *Sanitizer) Sanitize(e *TelemetryEvent) {
	e.PromptText = s.redact(e.PromptText)
	e.ResponseText = s.redact(e.ResponseText)
}

func (s *Sanitizer) redact(text string) string {
	if text == "" {
		return text
	}
	text = s.redactKeyPrefixes(text)
	text = s.email.ReplaceAllString(text, "[EMAIL]")
	text = s.card.ReplaceAllString(text, "[CARD]")
	text = s.ssn.ReplaceAllString(text, "[SSN]")
	return text
}

// redactKeyPrefixes matches each configured prefix followed by at least 20
// non-whitespace characters (spec §6) and replaces the whole match.
func (s *Sanitizer) redactKeyPrefixes(text string) string {
	for _, prefix := range s.keyPrefixes {
		lower := strings.ToLower(text)
		lowerPrefix := strings.ToLower(prefix)
		for {
			idx := strings.Index(lower, lowerPrefix)
			if idx < 0 {
				break
			}
			start := idx
			end := idx + len(prefix)
			runEnd := end
			for runEnd < len(text) && !isSpace(text[runEnd]) {
				runEnd++
			}
			if runEnd-end < 20 {
				// Not enough trailing non-whitespace to qualify; skip past
				// this occurrence and keep scanning for another match.
				lower = lower[:idx] + strings.Repeat("\x00", len(lowerPrefix)) + lower[idx+len(lowerPrefix):]
				continue
			}
			text = text[:start] + "[REDACTED]" + text[runEnd:]
			lower = strings.ToLower(text)
		}
	}
	return text
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}
