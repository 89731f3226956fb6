package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// AllowedHeaders is the CORS header list accepted by the API.
const AllowedHeaders = "authorization, x-client-info, apikey, content-type, " +
	"x-supabase-client-platform, x-supabase-client-platform-version, " +
	"x-supabase-client-runtime, x-supabase-client-runtime-version"

// SecurityHeadersConfig configures security and CORS headers.
type SecurityHeadersConfig struct {
	// AllowedOrigins is ["*"] or an explicit list of origins.
	AllowedOrigins []string
	// PlatformDomains are host suffixes (".lovable.app") whose https origins
	// are always reflected.
	PlatformDomains []string
	// HSTSEnabled adds Strict-Transport-Security. Should be true behind HTTPS.
	HSTSEnabled bool
	// HSTSMaxAge is the max-age for HSTS in seconds (default: 1 year).
	HSTSMaxAge int
}

// SecurityHeaders sets the security and CORS header set on every response
// and answers OPTIONS preflights with 204.
func SecurityHeaders(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	if cfg.HSTSMaxAge == 0 {
		cfg.HSTSMaxAge = 31536000
	}
	hsts := fmt.Sprintf("max-age=%d; includeSubDomains", cfg.HSTSMaxAge)
	resolve := OriginResolver(cfg.AllowedOrigins, cfg.PlatformDomains)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", resolve(r.Header.Get("Origin")))
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Headers", AllowedHeaders)
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			if cfg.HSTSEnabled {
				h.Set("Strict-Transport-Security", hsts)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OriginResolver returns the Access-Control-Allow-Origin value for a request origin.
//
// Rules, in order: an https origin on a platform domain is reflected; a
// wildcard configuration yields "*"; a listed origin is reflected; anything
// else yields "null". Without an Origin header the wildcard or the first
// configured origin is returned.
func OriginResolver(allowed, platformDomains []string) func(origin string) string {
	wildcard := len(allowed) == 0
	listed := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			wildcard = true
			continue
		}
		if o != "" {
			listed[o] = true
		}
	}

	fallback := "*"
	if !wildcard {
		fallback = "null"
		for _, o := range allowed {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				fallback = o
				break
			}
		}
	}

	return func(origin string) string {
		if origin == "" {
			return fallback
		}
		if isPlatformOrigin(origin, platformDomains) {
			return origin
		}
		if wildcard {
			return "*"
		}
		if listed[origin] {
			return origin
		}
		return "null"
	}
}

func isPlatformOrigin(origin string, domains []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !strings.HasPrefix(d, ".") {
			d = "." + d
		}
		if strings.HasSuffix(host, d) {
			return true
		}
	}
	return false
}
