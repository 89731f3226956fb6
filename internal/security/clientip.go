package security

import (
	"net/http"
	"strings"
)

// UnknownIP identifies requests that carry no client address header.
const UnknownIP = "unknown"

// ClientIP returns the caller address recorded by the edge proxy.
// Order: CF-Connecting-IP, first X-Forwarded-For hop, X-Real-IP.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownIP
}
