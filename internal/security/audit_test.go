package security

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archoncouncil/api/pkg/logger"
)

func TestAuditor_EntryScrubsTopLevelSecrets(t *testing.T) {
	a := NewAuditor(logger.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	entry := a.Entry(EventLoginFailed, map[string]any{
		"password": "hunter2",
		"Token":    "abc",
		"api_key":  "k1",
		"apiKey":   "k2",
		"SECRET":   "s",
		"route":    "auth-validate",
		"nested":   map[string]any{"password": "kept"},
	})

	assert.Equal(t, fixed, entry.Timestamp)
	assert.Equal(t, EventLoginFailed, entry.Event)
	assert.Equal(t, map[string]any{
		"route":  "auth-validate",
		"nested": map[string]any{"password": "kept"},
	}, entry.Metadata)
}

func TestAuditor_LogEmitsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditor(logger.New(logger.Config{Level: "info", Format: "json", Output: &buf}))

	a.Log(EventIPBlocked, map[string]any{"ip": MaskIP("203.0.113.77"), "route": "archon-decision", "token": "t"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "AUDIT", rec["msg"])
	assert.Equal(t, EventIPBlocked, rec["event"])
	assert.NotEmpty(t, rec["timestamp"])

	md, ok := rec["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "203.0.11***", md["ip"])
	assert.Equal(t, "archon-decision", md["route"])
	assert.NotContains(t, md, "token")
}

func TestAuditor_NilIsSafe(t *testing.T) {
	var a *Auditor
	assert.NotPanics(t, func() { a.Log("x", nil) })
}

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "192.168.***", MaskIP("192.168.10.20"))
	assert.Equal(t, "::1***", MaskIP("::1"))
	assert.Equal(t, "unknown***", MaskIP("unknown"))
}
