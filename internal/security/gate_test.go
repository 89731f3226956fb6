package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/pkg/logger"
)

func newTestGate(allowlist *IPAllowlist, clock *fakeClock) *Gate {
	log := logger.NewNop()
	return NewGate(allowlist, newTestLimiter(NewMemoryStore(), clock), NewAuditor(log), log)
}

func requestFrom(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/archon-decision", nil)
	r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
	return r
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2", "X-Real-IP": "3.3.3.3"}, "1.1.1.1"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": " 2.2.2.2 , 9.9.9.9", "X-Real-IP": "3.3.3.3"}, "2.2.2.2"},
		{"real ip", map[string]string{"X-Real-IP": "3.3.3.3"}, "3.3.3.3"},
		{"nothing", nil, UnknownIP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestGate_Passes(t *testing.T) {
	g := newTestGate(NewIPAllowlist(false, nil, logger.NewNop()), newFakeClock())

	res := g.Run(requestFrom("203.0.113.5"), "archon-decision", Rule{MaxRequests: 2, Window: time.Minute})
	assert.True(t, res.Passed)
	assert.Nil(t, res.Denial)
	assert.Equal(t, "203.0.113.5", res.IP)
}

func TestGate_IPBlockedBeforeRateLimit(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(NewIPAllowlist(true, []string{"10.0.0.0/8"}, logger.NewNop()), clock)
	rule := Rule{MaxRequests: 1, Window: time.Minute}

	for i := 0; i < 3; i++ {
		res := g.Run(requestFrom("203.0.113.5"), "archon-decision", rule)
		require.False(t, res.Passed)
		assert.Equal(t, http.StatusForbidden, res.Denial.Status)
		assert.Equal(t, MsgIPBlocked, res.Denial.Message)
		assert.Equal(t, KindIPNotAllowed, res.Decision.Kind)
	}

	// blocked addresses never consumed rate limit budget
	_, found, _ := g.limiter.store.Get(t.Context(), Key("archon-decision", "203.0.113.5"))
	assert.False(t, found)

	assert.True(t, g.Run(requestFrom("10.1.1.1"), "archon-decision", rule).Passed)
}

func TestGate_RateLimited(t *testing.T) {
	clock := newFakeClock()
	g := newTestGate(NewIPAllowlist(false, nil, logger.NewNop()), clock)
	rule := Rule{MaxRequests: 1, Window: time.Minute, BlockDuration: time.Minute}

	require.True(t, g.Run(requestFrom("1.2.3.4"), "auth-validate", rule).Passed)

	res := g.Run(requestFrom("1.2.3.4"), "auth-validate", rule)
	require.False(t, res.Passed)
	assert.Equal(t, http.StatusTooManyRequests, res.Denial.Status)
	assert.Equal(t, MsgRateLimited, res.Denial.Message)
	assert.Zero(t, res.Denial.RetryAfter)

	clock.Advance(15 * time.Second)
	res = g.Run(requestFrom("1.2.3.4"), "auth-validate", rule)
	require.False(t, res.Passed)
	assert.Equal(t, KindRateLimited, res.Decision.Kind)
	assert.Equal(t, 45, res.Denial.RetryAfter)
	assert.Equal(t, MsgRateLimited, res.Denial.Message)
}

func TestGate_CheckPayload(t *testing.T) {
	g := newTestGate(NewIPAllowlist(false, nil, logger.NewNop()), newFakeClock())
	v := PayloadValidator{MaxFieldLength: 3, MaxDepth: 4}

	assert.True(t, g.CheckPayload("archon-decision", v, map[string]any{"a": "abc"}).Allowed())
	d := g.CheckPayload("archon-decision", v, map[string]any{"a": "abcd"})
	assert.Equal(t, KindInvalidPayload, d.Kind)
}
