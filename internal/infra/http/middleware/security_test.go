package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

var platform = []string{".lovable.app", ".lovableproject.com"}

func TestOriginResolver(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"wildcard without origin", []string{"*"}, "", "*"},
		{"wildcard with origin", []string{"*"}, "https://evil.example", "*"},
		{"empty config behaves as wildcard", nil, "https://a.example", "*"},
		{"platform origin reflected under wildcard", []string{"*"}, "https://x.lovable.app", "https://x.lovable.app"},
		{"platform origin reflected under list", []string{"https://app.example"}, "https://p.lovableproject.com", "https://p.lovableproject.com"},
		{"platform origin needs https", []string{"https://app.example"}, "http://x.lovable.app", "null"},
		{"suffix must be a label boundary", []string{"https://app.example"}, "https://evillovable.app", "null"},
		{"listed origin reflected", []string{"https://app.example", "https://b.example"}, "https://b.example", "https://b.example"},
		{"unlisted origin", []string{"https://app.example"}, "https://other.example", "null"},
		{"list without origin yields first", []string{"https://app.example", "https://b.example"}, "", "https://app.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OriginResolver(tt.allowed, platform)(tt.origin))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	called := false
	h := SecurityHeaders(SecurityHeadersConfig{AllowedOrigins: []string{"*"}, PlatformDomains: platform})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/archon-decision", nil))

	assert.True(t, called)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Equal(t, AllowedHeaders, rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_Preflight(t *testing.T) {
	h := SecurityHeaders(SecurityHeadersConfig{AllowedOrigins: []string{"https://app.example"}, HSTSEnabled: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("preflight reached the handler")
		}),
	)

	req := httptest.NewRequest(http.MethodOptions, "/auth-validate", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}
