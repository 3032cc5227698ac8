package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/model"
	"github.com/pocketledger/pocketledger/internal/repository"
)

const (
	maxUsernameLength = 50
	minPasswordLength = 8
)

// AuthService registers users and verifies credentials. Session handling is
// the caller's concern; this service only resolves users.
type AuthService struct {
	repo *repository.Repository
	now  func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo *repository.Repository) *AuthService {
	return &AuthService{repo: repo, now: time.Now}
}

// Register creates a new user with an Argon2id password hash. A duplicate
// username is a field-tagged validation failure, never a silent return of
// the existing account.
func (s *AuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)

	verr := newValidationError()
	if username == "" {
		verr.Add("username", "username must not be empty")
	} else if len(username) > maxUsernameLength {
		verr.Add("username", fmt.Sprintf("username must be at most %d characters", maxUsernameLength))
	}
	if len(password) < minPasswordLength {
		verr.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			verr := newValidationError()
			verr.Add("username", "username already taken")
			return nil, verr
		}
		return nil, fmt.Errorf("persist user: %w", err)
	}

	return user, nil
}

// ChangePassword replaces the password hash after verifying the current
// password, the only part of an identity that may change after Register.
// The new password must satisfy the same policy as Register.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	match, err := auth.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return ErrInvalidCredentials
	}

	if len(newPassword) < minPasswordLength {
		verr := newValidationError()
		verr.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return verr
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("persist password: %w", err)
	}
	return nil
}

// Attempt verifies a username/password pair and returns the matching user.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials so
// accounts cannot be enumerated through the login path.
func (s *AuthService) Attempt(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	match, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
