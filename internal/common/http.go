package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address, trusting proxy headers
// in the order a typical ingress sets them. Used as the rate-limit key for
// the public confirmation endpoints.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		// first hop is the client, the rest are proxies
		if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
			return first
		}
		return fwd
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
