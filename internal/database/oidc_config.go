package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
)

const oidcColumns = `id, provider, issuer, domain, client_id, client_secret, redirect_uri, jwks_url, created_at, updated_at`

// OIDCConfigRepository handles OIDC configuration database operations
type OIDCConfigRepository struct {
	db *DB
}

// NewOIDCConfigRepository creates a new OIDC config repository
func NewOIDCConfigRepository(db *DB) *OIDCConfigRepository {
	return &OIDCConfigRepository{db: db}
}

func scanOIDCConfig(row interface{ Scan(...any) error }) (*models.OIDCConfig, error) {
	config := &models.OIDCConfig{}
	err := row.Scan(
		&config.ID,
		&config.Provider,
		&config.Issuer,
		&config.Domain,
		&config.ClientID,
		&config.ClientSecret,
		&config.RedirectURI,
		&config.JWKSUrl,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Upsert creates or replaces the configuration for config.Provider
func (r *OIDCConfigRepository) Upsert(ctx context.Context, config *models.OIDCConfig) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO oidc_config (id, provider, issuer, domain, client_id, client_secret, redirect_uri, jwks_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (provider) DO UPDATE SET
			issuer = EXCLUDED.issuer,
			domain = EXCLUDED.domain,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			redirect_uri = EXCLUDED.redirect_uri,
			jwks_url = EXCLUDED.jwks_url,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at
	`,
		config.ID,
		config.Provider,
		config.Issuer,
		config.Domain,
		config.ClientID,
		config.ClientSecret,
		config.RedirectURI,
		config.JWKSUrl,
		now,
	).Scan(&config.ID, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert OIDC config: %w", err)
	}
	return nil
}

// GetByProvider retrieves an OIDC configuration by provider name
func (r *OIDCConfigRepository) GetByProvider(ctx context.Context, provider string) (*models.OIDCConfig, error) {
	config, err := scanOIDCConfig(r.db.QueryRowContext(ctx, `SELECT `+oidcColumns+` FROM oidc_config WHERE provider = $1`, provider))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("OIDC config for provider %s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OIDC config: %w", err)
	}
	return config, nil
}

// GetAll retrieves all OIDC configurations
func (r *OIDCConfigRepository) GetAll(ctx context.Context) ([]*models.OIDCConfig, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+oidcColumns+` FROM oidc_config ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("failed to query OIDC configs: %w", err)
	}
	defer closeRows(rows)

	var configs []*models.OIDCConfig
	for rows.Next() {
		config, err := scanOIDCConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan OIDC config: %w", err)
		}
		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating OIDC configs: %w", err)
	}
	return configs, nil
}

// Delete deletes an OIDC configuration by provider
func (r *OIDCConfigRepository) Delete(ctx context.Context, provider string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM oidc_config WHERE provider = $1`, provider)
	if err != nil {
		return fmt.Errorf("failed to delete OIDC config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("OIDC config for provider %s: %w", provider, ErrNotFound)
	}
	return nil
}
