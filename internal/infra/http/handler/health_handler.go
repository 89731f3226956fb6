package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/archoncouncil/api/pkg/logger"
)

// Pinger interface for health check dependencies.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version string
	checks  map[string]Pinger
	timeout time.Duration
	logger  *logger.Logger
}

// HealthHandlerOption configures the health handler.
type HealthHandlerOption func(*HealthHandler)

// WithDatabase adds database health check.
func WithDatabase(db Pinger) HealthHandlerOption {
	return WithCheck("database", db)
}

// WithRedis adds Redis health check.
func WithRedis(redis Pinger) HealthHandlerOption {
	return WithCheck("redis", redis)
}

// WithCheck adds a named readiness dependency. Nil pingers are ignored.
func WithCheck(name string, p Pinger) HealthHandlerOption {
	return func(h *HealthHandler) {
		if p != nil {
			h.checks[name] = p
		}
	}
}

// WithVersion reports the build version in responses.
func WithVersion(version string) HealthHandlerOption {
	return func(h *HealthHandler) {
		h.version = version
	}
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(log *logger.Logger, opts ...HealthHandlerOption) *HealthHandler {
	h := &HealthHandler{
		checks:  make(map[string]Pinger),
		timeout: 5 * time.Second,
		logger:  log.With("handler", "health"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	})
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents a single health check result.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// Ready handles the /ready endpoint (readiness probe). It answers 503 when
// any configured dependency fails to respond. Failure details are logged,
// not returned.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]CheckResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.checkDependency(ctx, name, h.checks[name])
		}()
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(names))
	status, code := "ready", http.StatusOK
	for i, name := range names {
		checks[name] = results[i]
		if results[i].Status != "ok" {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// checkDependency pings a dependency and returns the result.
func (h *HealthHandler) checkDependency(ctx context.Context, name string, pinger Pinger) CheckResult {
	start := time.Now()
	err := pinger.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		h.logger.Warn("readiness check failed", "dependency", name, "error", err)
		return CheckResult{Status: "error", Duration: duration.String()}
	}
	return CheckResult{Status: "ok", Duration: duration.String()}
}
