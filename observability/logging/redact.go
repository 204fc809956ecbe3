package logging

import (
	"log/slog"
	"slices"
	"strings"
)

// RedactedValue replaces sensitive field values in log output.
const RedactedValue = "[REDACTED]"

// Keys that may appear in log output unmasked. Everything else passed through
// MaskField is replaced with RedactedValue.
var passthroughKeys = []string{
	"component", "env", "error", "message", "method", "module", "outcome",
	"reason", "scope", "seq", "service", "severity", "timestamp",
}

func passthroughAllowed(key string) bool {
	return slices.Contains(passthroughKeys, strings.ToLower(strings.TrimSpace(key)))
}

// MaskValue masks value unless it is blank.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a slog attribute whose value is masked unless the key is
// on the passthrough list. Blank values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || passthroughAllowed(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
