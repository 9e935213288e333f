package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces sensitive values in log attributes.
const RedactedValue = "[REDACTED]"

// plainKeys are attribute keys MaskField emits verbatim. Anything else passed
// through MaskField is treated as a credential.
var plainKeys = map[string]struct{}{
	"op":       {},
	"account":  {},
	"member":   {},
	"role":     {},
	"epoch":    {},
	"event":    {},
	"delivery": {},
	"driver":   {},
	"error":    {},
	"reason":   {},
}

// dsnSecretKeys are keyword DSN fields whose values never reach the logs.
var dsnSecretKeys = []string{"password=", "sslkey=", "sslpassword="}

// IsAllowlisted reports whether MaskField logs key in clear.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr that redacts value unless key is allowlisted.
// Empty values are kept so a missing secret is still visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskDSN logs a connection string or endpoint without its credentials. URL
// forms keep scheme, user, host and path; keyword forms such as
// "host=db password=x" keep every field except the secret ones.
func MaskDSN(key, raw string) slog.Attr {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.String(key, raw)
	}
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			return slog.String(key, RedactedValue)
		}
		if parsed.RawQuery != "" {
			parsed.RawQuery = RedactedValue
		}
		parsed.Fragment = ""
		return slog.String(key, parsed.Redacted())
	}
	if !strings.Contains(raw, "=") {
		// Plain file paths such as a sqlite database.
		return slog.String(key, raw)
	}
	fields := strings.Fields(raw)
	for i, field := range fields {
		lower := strings.ToLower(field)
		for _, secret := range dsnSecretKeys {
			if strings.HasPrefix(lower, secret) {
				fields[i] = field[:len(secret)] + RedactedValue
			}
		}
	}
	return slog.String(key, strings.Join(fields, " "))
}
