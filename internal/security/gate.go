package security

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/apierror"
	"github.com/archoncouncil/api/pkg/logger"
)

const tracerName = "github.com/archoncouncil/api/internal/security"

// Result is the outcome of the gate for one request.
type Result struct {
	Passed bool
	// Denial is the terminal response when Passed is false.
	Denial *apierror.Error
	// Decision is the check that denied the request, or an allowing decision.
	Decision Decision
	IP       string
}

// Gate runs the cheap, request-independent checks in front of a handler:
// client IP derivation, IP allowlist, then rate limiting.
type Gate struct {
	allowlist *IPAllowlist
	limiter   *RateLimiter
	auditor   *Auditor
	logger    *logger.Logger
}

// NewGate creates a Gate.
func NewGate(allowlist *IPAllowlist, limiter *RateLimiter, auditor *Auditor, log *logger.Logger) *Gate {
	return &Gate{
		allowlist: allowlist,
		limiter:   limiter,
		auditor:   auditor,
		logger:    log.With("component", "security_gate"),
	}
}

// Run evaluates r for route. The first denial short-circuits.
func (g *Gate) Run(r *http.Request, route string, rule Rule) Result {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "security.gate")
	defer span.End()

	ip := ClientIP(r)
	span.SetAttributes(attribute.String("security.route", route))

	if d := g.allowlist.Check(ip); !d.Allowed() {
		g.auditor.Log(EventIPBlocked, map[string]any{"ip": MaskIP(ip), "route": route})
		return g.deny(span, route, ip, d)
	}

	if d := g.limiter.Check(ctx, ip, route, rule); !d.Allowed() {
		g.auditor.Log(EventRateLimited, map[string]any{"ip": MaskIP(ip), "route": route, "reason": d.Reason()})
		return g.deny(span, route, ip, d)
	}

	metrics.SecurityDecisionsTotal.WithLabelValues(route, KindAllowed.String()).Inc()
	return Result{Passed: true, Decision: Allow(), IP: ip}
}

func (g *Gate) deny(span trace.Span, route, ip string, d Decision) Result {
	span.SetAttributes(attribute.String("security.decision", d.Kind.String()))
	metrics.SecurityDecisionsTotal.WithLabelValues(route, d.Kind.String()).Inc()
	return Result{Passed: false, Denial: d.Err(), Decision: d, IP: ip}
}

// CheckPayload validates a decoded body and audits a rejection.
func (g *Gate) CheckPayload(route string, v PayloadValidator, body any) Decision {
	d := v.Validate(body)
	if !d.Allowed() {
		metrics.SecurityDecisionsTotal.WithLabelValues(route, d.Kind.String()).Inc()
		g.auditor.Log(EventInvalidPayload, map[string]any{"route": route, "reason": d.Message})
	}
	return d
}
