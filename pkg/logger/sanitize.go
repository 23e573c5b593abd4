package logger

import (
	"strings"
)

// SanitizedEmail masks an address for log output, keeping just enough to
// correlate entries: first character of the local part and the TLD.
func SanitizedEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" {
		return "[invalid-email]"
	}

	if len(local) > 1 {
		local = local[:1] + strings.Repeat("*", len(local)-1)
	}

	labels := strings.Split(domain, ".")
	if len(labels) > 1 {
		for i := 0; i < len(labels)-1; i++ {
			labels[i] = strings.Repeat("*", len(labels[i]))
		}
		domain = strings.Join(labels, ".")
	}

	return local + "@" + domain
}

// sensitive query parameter names; substring match on purpose, so
// "refresh_token" and "reset_code" are caught too.
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"email",
	"key",
	"auth",
}

// SanitizeQueryString reports whether a raw query string may carry
// credentials or passcodes and should be redacted from request logs.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
