package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/archoncouncil/api/internal/security"
	"github.com/archoncouncil/api/pkg/apierror"
	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/logger"
)

// Authenticator performs password login.
type Authenticator interface {
	Login(ctx context.Context, email, password any) (*identity.Session, error)
}

// LoginResponse is the body of a successful POST /auth-validate.
type LoginResponse struct {
	Success bool        `json:"success"`
	Session SessionBody `json:"session"`
}

// SessionBody is the token set handed to the client.
type SessionBody struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    int64         `json:"expires_at"`
	User         identity.User `json:"user"`
}

// loginFailure keeps every login error in the same shape.
type loginFailure struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// AuthHandler handles POST /auth-validate.
type AuthHandler struct {
	gate   *security.Gate
	rule   security.Rule
	auth   Authenticator
	logger *logger.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(gate *security.Gate, rule security.Rule, auth Authenticator, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		gate:   gate,
		rule:   rule,
		auth:   auth,
		logger: log.With("handler", "auth"),
	}
}

// Validate exchanges email and password for a session.
// Malformed bodies, unknown emails and wrong passwords are indistinguishable.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if res := h.gate.Run(r, RouteAuth, h.rule); !res.Passed {
		writeLoginError(w, res.Denial)
		return
	}

	// A body that fails to decode yields nil fields, which Login rejects
	// with the generic credential error.
	body, _, _ := readBody(r)

	session, err := h.auth.Login(r.Context(), field(body, "email"), field(body, "password"))
	if err != nil {
		if errors.Is(err, security.ErrNotConfigured) {
			writeLoginError(w, apierror.NotConfigured(err))
			return
		}
		writeLoginError(w, apierror.Unauthorized(security.MsgInvalidCredentials))
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Session: SessionBody{
			AccessToken:  session.AccessToken,
			RefreshToken: session.RefreshToken,
			ExpiresAt:    session.ExpiresAt,
			User:         session.User,
		},
	})
}

func writeLoginError(w http.ResponseWriter, e *apierror.Error) {
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	writeJSON(w, e.Status, loginFailure{Error: e.Message})
}
