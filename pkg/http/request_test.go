package http_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/lmorrow/taskvault/pkg/http"
)

func TestClientIP_DirectConnectionIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	ip := pkghttp.ClientIP(req, []string{"10.0.0.0/8", "127.0.0.1/32"})

	assert.Equal(t, "203.0.113.10", ip, "forwarding headers from an untrusted peer must be ignored")
}

func TestClientIP_TrustedProxyUsesForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	ip := pkghttp.ClientIP(req, []string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", ip)
}

func TestClientIP_TrustedProxyFallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Real-IP", "203.0.113.42")

	ip := pkghttp.ClientIP(req, []string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", ip)
}

func TestClientIP_IPv6TrustedProxy(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "[::1]:54321"
	req.Header.Set("X-Forwarded-For", "2001:db8::1")

	ip := pkghttp.ClientIP(req, []string{"::1/128"})

	assert.Equal(t, "2001:db8::1", ip)
}

func TestClientIP_NoTrustedProxiesConfigured(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	ip := pkghttp.ClientIP(req, nil)

	assert.Equal(t, "203.0.113.10", ip)
}

func TestClientIP_InvalidCIDRRangesAreSkipped(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	ip := pkghttp.ClientIP(req, []string{"not-a-cidr", "also-bad"})

	assert.Equal(t, "203.0.113.10", ip)
}

func TestClientIP_FirstValidForwardedEntryWins(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "garbage, 203.0.113.42, 10.0.0.5")

	ip := pkghttp.ClientIP(req, []string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", ip)
}

func TestClientIP_StripsPortFromPeerAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"

	ip := pkghttp.ClientIP(req, nil)

	assert.Equal(t, "203.0.113.10", ip)
}

func TestClientIP_LocalhostSpoofIsRejected(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "127.0.0.1, 203.0.113.10")

	ip := pkghttp.ClientIP(req, []string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.10", ip, "a client claiming to be localhost must not be believed")
}
