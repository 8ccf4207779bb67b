package logging

import (
	"net/url"
	"strings"
)

// RedactURL masks the password of a connection URL (redis://, nats://) so it
// can be logged. Unparseable input carrying an @ is dropped entirely.
func RedactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		if strings.Contains(raw, "@") {
			return "[REDACTED]"
		}
		return raw
	}
	return u.Redacted()
}
