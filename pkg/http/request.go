package http

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address for a request.
// Forwarding headers are honored only when the direct peer falls inside
// one of the trusted proxy CIDR ranges; otherwise a client could spoof
// its address and dodge per-IP rate limits.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := peerAddr(r)

	if !fromTrustedProxy(peer, trustedProxies) {
		return peer
	}

	// X-Forwarded-For may hold a chain; the first valid entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, hop := range strings.Split(xff, ",") {
			hop = strings.TrimSpace(hop)
			if net.ParseIP(hop) != nil {
				return hop
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	return peer
}

func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func fromTrustedProxy(addr string, trustedProxies []string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
