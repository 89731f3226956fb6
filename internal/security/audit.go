package security

import (
	"log/slog"
	"strings"
	"time"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/logger"
)

// Audit event names.
const (
	EventIPBlocked         = "ip_blocked"
	EventRateLimited       = "rate_limited"
	EventInvalidPayload    = "invalid_payload"
	EventAuthFailed        = "auth_failed"
	EventAuthDenied        = "auth_denied"
	EventLoginFailed       = "login_failed"
	EventLoginSucceeded    = "login_succeeded"
	EventDecisionCompleted = "decision_completed"
	EventDecisionFailed    = "decision_failed"
	EventTTSCompleted      = "tts_completed"
)

// scrubbedKeys are removed from the top level of audit metadata (any casing).
var scrubbedKeys = map[string]bool{
	"password": true,
	"token":    true,
	"api_key":  true,
	"apikey":   true,
	"secret":   true,
}

// AuditEntry is one emitted audit record.
type AuditEntry struct {
	Timestamp time.Time
	Event     string
	Metadata  map[string]any
}

// Auditor writes audit entries to the process log.
type Auditor struct {
	logger *logger.Logger
	now    func() time.Time
}

// NewAuditor creates an auditor writing through log.
func NewAuditor(log *logger.Logger) *Auditor {
	return &Auditor{
		logger: log.With("component", "audit"),
		now:    time.Now,
	}
}

// Entry builds the scrubbed entry for event without emitting it.
func (a *Auditor) Entry(event string, metadata map[string]any) AuditEntry {
	clean := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if scrubbedKeys[strings.ToLower(k)] {
			continue
		}
		clean[k] = v
	}
	return AuditEntry{
		Timestamp: a.now().UTC(),
		Event:     event,
		Metadata:  clean,
	}
}

// Log emits an audit entry. It never fails the caller.
func (a *Auditor) Log(event string, metadata map[string]any) {
	if a == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("audit emission failed", "event", event, "panic", r)
		}
	}()

	entry := a.Entry(event, metadata)

	attrs := make([]any, 0, len(entry.Metadata))
	for k, v := range entry.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}

	a.logger.Info("AUDIT",
		slog.String("timestamp", entry.Timestamp.Format(time.RFC3339Nano)),
		slog.String("event", entry.Event),
		slog.Group("metadata", attrs...),
	)
	metrics.AuditEventsTotal.WithLabelValues(event).Inc()
}

// MaskIP keeps the first eight characters of an address for audit records.
func MaskIP(ip string) string {
	if len(ip) > 8 {
		ip = ip[:8]
	}
	return ip + "***"
}
