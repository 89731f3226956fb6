// Package security implements the request gate that fronts the council
// endpoints: IP allowlist, fixed-window rate limiting with progressive
// lockout, payload validation, bearer and password authentication, output
// sanitization, and audit logging.
package security

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/archoncouncil/api/pkg/apierror"
)

// Kind enumerates the outcomes of a security check.
type Kind int

const (
	KindAllowed Kind = iota
	KindIPNotAllowed
	KindRateLimited
	KindRateLimitExceeded
	KindInvalidPayload
	KindMissingBearer
	KindInvalidToken
	KindUnauthorizedEmail
	KindMisconfigured
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindAllowed:
		return "allowed"
	case KindIPNotAllowed:
		return "ip_not_allowed"
	case KindRateLimited:
		return "rate_limited"
	case KindRateLimitExceeded:
		return "rate_limit_exceeded"
	case KindInvalidPayload:
		return "invalid_payload"
	case KindMissingBearer:
		return "missing_bearer"
	case KindInvalidToken:
		return "invalid_token"
	case KindUnauthorizedEmail:
		return "unauthorized_email"
	case KindMisconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

// Client-facing messages. Security denials are deliberately vague.
const (
	MsgIPBlocked          = "Acesso não autorizado"
	MsgRateLimited        = "Limite de requisições excedido. Tente novamente mais tarde."
	MsgAuthRequired       = "Autenticação necessária"
	MsgAuthInvalid        = "Autenticação inválida"
	MsgAccessDenied       = "Acesso negado"
	MsgInvalidCredentials = "Credenciais inválidas"
	MsgInvalidPayload     = "Payload inválido"
)

// Decision is the result of one check. The zero value allows the request.
type Decision struct {
	Kind Kind

	// RetryAfter is the remaining block time for KindRateLimited.
	RetryAfter time.Duration

	// Message describes a KindInvalidPayload violation.
	Message string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Kind: KindAllowed}
}

// Deny returns a denial of the given kind.
func Deny(kind Kind) Decision {
	return Decision{Kind: kind}
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Kind == KindAllowed
}

// RetryAfterSeconds rounds the remaining block time up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Reason returns the machine-readable cause, or "" when allowed.
func (d Decision) Reason() string {
	switch d.Kind {
	case KindAllowed:
		return ""
	case KindRateLimited:
		return fmt.Sprintf("rate_limited:%ds", d.RetryAfterSeconds())
	default:
		return d.Kind.String()
	}
}

// StatusCode returns the HTTP status to surface.
func (d Decision) StatusCode() int {
	if e := d.Err(); e != nil {
		return e.Status
	}
	return http.StatusOK
}

// Err converts a denial into the client-facing error. It returns nil when allowed.
func (d Decision) Err() *apierror.Error {
	switch d.Kind {
	case KindAllowed:
		return nil
	case KindIPNotAllowed:
		return apierror.Forbidden(MsgIPBlocked)
	case KindRateLimited:
		return apierror.TooManyRequests(MsgRateLimited).WithRetryAfter(d.RetryAfterSeconds())
	case KindRateLimitExceeded:
		return apierror.TooManyRequests(MsgRateLimited)
	case KindInvalidPayload:
		msg := d.Message
		if msg == "" {
			msg = MsgInvalidPayload
		}
		return apierror.ValidationFailed(msg, nil)
	case KindMissingBearer:
		return apierror.Unauthorized(MsgAuthRequired)
	case KindInvalidToken:
		return apierror.Unauthorized(MsgAuthInvalid)
	case KindUnauthorizedEmail:
		return apierror.Forbidden(MsgAccessDenied)
	default:
		return apierror.NotConfigured(fmt.Errorf("security check: %s", d.Kind))
	}
}
