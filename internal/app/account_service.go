package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/archoncouncil/api/pkg/domain/identity"
	"github.com/archoncouncil/api/pkg/logger"
)

// Account setup errors
var (
	ErrAuthorizedEmailMissing = errors.New("authorized email is not configured")
	ErrInitialPasswordMissing = errors.New("initial password is not configured")
)

// UserDirectory is the admin side of the identity provider.
type UserDirectory interface {
	FindUserByEmail(ctx context.Context, email string) (*identity.User, error)
	CreateUser(ctx context.Context, email, password string) (*identity.User, error)
}

// SetupResult reports what SetupUser did.
type SetupResult struct {
	UserID  string
	Email   string
	Created bool
}

// AccountService provisions the single authorized account.
type AccountService struct {
	directory UserDirectory
	logger    *logger.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(directory UserDirectory, log *logger.Logger) *AccountService {
	return &AccountService{
		directory: directory,
		logger:    log.With("service", "account"),
	}
}

// SetupUser makes sure the authorized user exists, creating it with
// password when absent. An existing user keeps its current password.
func (s *AccountService) SetupUser(ctx context.Context, email, password string) (*SetupResult, error) {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, ErrAuthorizedEmailMissing
	}

	existing, err := s.directory.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Info("authorized user already exists", "user_id", existing.ID)
		return &SetupResult{UserID: existing.ID, Email: email}, nil
	case !errors.Is(err, identity.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if password == "" {
		return nil, ErrInitialPasswordMissing
	}

	user, err := s.directory.CreateUser(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("authorized user created", "user_id", user.ID)
	return &SetupResult{UserID: user.ID, Email: email, Created: true}, nil
}
