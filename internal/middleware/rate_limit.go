package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// RateLimitConfig holds a per-IP request budget over a rolling window
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// CredentialRateLimit is the budget for credential endpoints: signin,
// reactivate, passcode verification.
func CredentialRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// PasscodeSendRateLimit is the budget for endpoints that trigger an email.
// Tighter than the credential budget since each hit costs an SES send.
func PasscodeSendRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 3, Window: time.Minute}
}

// GeneralRateLimit is the budget for authenticated API traffic
func GeneralRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 120, Window: time.Minute}
}

// RateLimitByIP limits requests per client IP over the configured window.
// Keys on RemoteAddr, which ResolveClientIP has already rewritten to the
// real client address; forwarding headers themselves are never trusted here.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded. Please try again later.")
		}),
	)
}
