package middleware

import (
	"net/http"

	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

// ResolveClientIP rewrites RemoteAddr to the originating client address,
// honoring forwarding headers only from the configured proxy CIDR ranges.
// Must run before any middleware that keys on RemoteAddr, notably the
// per-IP rate limiters.
func ResolveClientIP(trustedProxies []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = pkghttp.ClientIP(r, trustedProxies)
			next.ServeHTTP(w, r)
		})
	}
}
