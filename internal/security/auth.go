package security

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/archoncouncil/api/internal/metrics"
	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/logger"
)

// Login errors. ErrInvalidCredentials covers every credential-related
// failure so callers cannot tell an unknown email from a wrong password.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfigured      = errors.New("authentication not configured")
)

// IdentityProvider exchanges credentials with the external identity service.
type IdentityProvider interface {
	GetUser(ctx context.Context, token string) (*identity.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
}

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// AuthorizedEmail is the only principal accepted. Empty disables the
	// check for bearer tokens and makes password login unavailable.
	AuthorizedEmail string
	// BearerConfigured is false when the provider URL or anon key is missing.
	BearerConfigured bool
	// SignInConfigured is false when the provider URL or service key is missing.
	SignInConfigured bool
	// MaxFieldLength bounds login email and password length.
	MaxFieldLength int
}

// Principal is an authenticated caller.
type Principal struct {
	ID         string
	Email      string
	Token      string
	AuthHeader string
}

// Authenticator enforces the single authorized-principal policy.
type Authenticator struct {
	provider IdentityProvider
	cfg      AuthConfig
	auditor  *Auditor
	logger   *logger.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(provider IdentityProvider, cfg AuthConfig, auditor *Auditor, log *logger.Logger) *Authenticator {
	if cfg.MaxFieldLength <= 0 {
		cfg.MaxFieldLength = 255
	}
	return &Authenticator{
		provider: provider,
		cfg:      cfg,
		auditor:  auditor,
		logger:   log.With("component", "authenticator"),
	}
}

const bearerPrefix = "Bearer "

// RequireAuth validates the Authorization header value for route.
func (a *Authenticator) RequireAuth(ctx context.Context, route, authHeader string) (*Principal, Decision) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "security.require_auth")
	defer span.End()

	p, d := a.requireAuth(ctx, authHeader)
	span.SetAttributes(attribute.String("security.decision", d.Kind.String()))
	metrics.SecurityDecisionsTotal.WithLabelValues(route, d.Kind.String()).Inc()

	switch d.Kind {
	case KindAllowed:
	case KindUnauthorizedEmail:
		a.auditor.Log(EventAuthDenied, map[string]any{"route": route, "reason": d.Reason()})
	default:
		a.auditor.Log(EventAuthFailed, map[string]any{"route": route, "reason": d.Reason()})
	}
	return p, d
}

func (a *Authenticator) requireAuth(ctx context.Context, authHeader string) (*Principal, Decision) {
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return nil, Deny(KindMissingBearer)
	}
	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return nil, Deny(KindMissingBearer)
	}

	if !a.cfg.BearerConfigured || a.provider == nil {
		a.logger.Error("identity provider URL or anon key not configured")
		return nil, Deny(KindMisconfigured)
	}

	user, err := a.provider.GetUser(ctx, token)
	if err != nil || user == nil {
		if err != nil && !errors.Is(err, identity.ErrInvalidToken) {
			a.logger.Warn("identity provider lookup failed", "error", err)
		}
		return nil, Deny(KindInvalidToken)
	}

	if a.cfg.AuthorizedEmail != "" && user.Email != "" {
		if !identity.SameEmail(user.Email, a.cfg.AuthorizedEmail) {
			return nil, Deny(KindUnauthorizedEmail)
		}
	}

	return &Principal{
		ID:         user.ID,
		Email:      user.Email,
		Token:      token,
		AuthHeader: authHeader,
	}, Allow()
}

// Login verifies an email and password taken from an untrusted body.
// Non-string, missing, or oversized fields, an email other than the
// authorized one, and any provider failure all yield ErrInvalidCredentials.
// A missing configuration yields ErrNotConfigured for every well-formed
// request. The provider is never called for an unauthorized email.
func (a *Authenticator) Login(ctx context.Context, email, password any) (*identity.Session, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "security.login")
	defer span.End()

	session, reason, err := a.login(ctx, email, password)
	if err != nil {
		span.SetAttributes(attribute.String("security.login_failure", reason))
		kind := "invalid_credentials"
		if errors.Is(err, ErrNotConfigured) {
			kind = KindMisconfigured.String()
		}
		metrics.SecurityDecisionsTotal.WithLabelValues("auth-validate", kind).Inc()
		a.auditor.Log(EventLoginFailed, map[string]any{"reason": reason})
		return nil, err
	}

	metrics.SecurityDecisionsTotal.WithLabelValues("auth-validate", KindAllowed.String()).Inc()
	a.auditor.Log(EventLoginSucceeded, map[string]any{"user_id": session.User.ID})
	return session, nil
}

func (a *Authenticator) login(ctx context.Context, rawEmail, rawPassword any) (*identity.Session, string, error) {
	email, ok := rawEmail.(string)
	if !ok || strings.TrimSpace(email) == "" {
		return nil, "missing_email", ErrInvalidCredentials
	}
	password, ok := rawPassword.(string)
	if !ok || password == "" {
		return nil, "missing_password", ErrInvalidCredentials
	}
	if utf8.RuneCountInString(email) > a.cfg.MaxFieldLength || utf8.RuneCountInString(password) > a.cfg.MaxFieldLength {
		return nil, "oversized_field", ErrInvalidCredentials
	}

	// Configuration is checked before the email comparison so a
	// misconfigured deployment answers every caller the same way.
	if a.cfg.AuthorizedEmail == "" {
		a.logger.Error("authorized email not configured")
		return nil, "misconfigured", ErrNotConfigured
	}
	if !a.cfg.SignInConfigured || a.provider == nil {
		a.logger.Error("identity provider URL or service key not configured")
		return nil, "misconfigured", ErrNotConfigured
	}

	if !identity.SameEmail(email, a.cfg.AuthorizedEmail) {
		return nil, "unauthorized_email", ErrInvalidCredentials
	}

	session, err := a.provider.SignInWithPassword(ctx, identity.NormalizeEmail(email), password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidCredentials) {
			a.logger.Warn("identity provider sign-in failed", "error", err)
		}
		return nil, "provider_rejected", ErrInvalidCredentials
	}
	if session == nil || session.AccessToken == "" {
		return nil, "no_session", ErrInvalidCredentials
	}
	return session, "", nil
}
