// Package identity holds the principal and session types shared by the
// authenticator and the identity provider client.
package identity

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// Provider errors.
var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("provider returned no session")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotConfigured      = errors.New("identity provider not configured")
)

// User is an authenticated principal as reported by the provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the token set returned by a successful password sign-in.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// NormalizeEmail trims and case-folds an address for comparison.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// SameEmail reports whether two addresses name the same mailbox,
// ignoring surrounding whitespace and letter case.
func SameEmail(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}
