package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
)

const userColumns = `id, email, provider_id, name, email_verified, created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Email, &user.ProviderID, &user.Name, &user.EmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByProviderID retrieves a user by the subject their identity provider issued
func (r *UserRepository) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE provider_id = $1`, providerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with provider id %s: %w", providerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by provider ID: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpsertFromProvider creates or refreshes the user for an identity provider subject.
// An existing account with the same email is linked to the subject.
func (r *UserRepository) UpsertFromProvider(ctx context.Context, providerID, email string, name *string, emailVerified bool) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if providerID == "" || email == "" {
		return nil, fmt.Errorf("provider id and email are required")
	}

	now := time.Now().UTC()
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, provider_id, name, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (email) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			name = COALESCE(EXCLUDED.name, users.name),
			email_verified = EXCLUDED.email_verified,
			updated_at = EXCLUDED.updated_at
		RETURNING `+userColumns,
		uuid.New(), email, providerID, name, emailVerified, now,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, nil
}

// Delete deletes a user by ID
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}
