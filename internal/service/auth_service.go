// Package service orchestrates the CRUD layer around the ledger core:
// account registration, trip and member lifecycle, expense entry, and the
// presenter that renders balances for the API.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/velotrips/velo/internal/auth"
	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/storage"
)

// ErrInvalidInput marks request-level validation failures. The HTTP layer
// maps it to a 400.
var ErrInvalidInput = errors.New("invalid request")

// AuthService handles registration, login and session lookup.
type AuthService struct {
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
	store         storage.Store
}

// NewAuthService creates a new authentication service.
func NewAuthService(authenticator auth.Authenticator, jwtManager *auth.JWTManager, store storage.Store) *AuthService {
	return &AuthService{
		authenticator: authenticator,
		jwtManager:    jwtManager,
		store:         store,
	}
}

// Register creates a new user account and returns it with a session token.
func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*models.User, string, error) {
	if email == "" || displayName == "" {
		return nil, "", ErrInvalidInput
	}

	user, err := s.authenticator.Register(ctx, email, displayName, password)
	if err != nil {
		slog.Warn("Registration failed", "email", email, "error", err)
		return nil, "", err
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		slog.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, "", err
	}

	slog.Info("User registered", "user_id", user.ID, "email", user.Email)
	return user, token, nil
}

// Login authenticates a user and returns a session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	if email == "" || password == "" {
		return nil, "", auth.ErrInvalidCredentials
	}

	user, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		slog.Warn("Login failed", "email", email, "error", err)
		return nil, "", auth.ErrInvalidCredentials
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		slog.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, "", err
	}

	slog.Info("User logged in", "user_id", user.ID)
	return user, token, nil
}

// CurrentUser returns the full record for an authenticated user ID.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUserByID(ctx, userID)
}
