package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/velotrips/velo/internal/models"
	"github.com/velotrips/velo/internal/storage"
)

// CreateUser persists a new user, generating an ID if not set.
func (s *queries) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByEmail retrieves a user by email address.
func (s *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at FROM users WHERE email = ?`,
		email,
	))
}

// GetUserByID retrieves a user by ID.
func (s *queries) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at FROM users WHERE id = ?`,
		id,
	))
}

func (s *queries) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return user, nil
}
