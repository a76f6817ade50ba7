package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ar-invoicing/internal/database"
	"github.com/pesio-ai/be-ar-invoicing/internal/errors"
)

// XeroConnection is the stored authorization for the connected organisation.
// The dashboard connects to a single organisation at a time.
type XeroConnection struct {
	ConnectionID string
	TenantID     string
	TenantName   string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	ConnectedAt  time.Time
	UpdatedAt    time.Time
}

// ConnectionRepository stores the Xero connection.
type ConnectionRepository struct {
	db database.Querier
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db database.Querier) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Get returns the current connection, or a no_credentials error when Xero
// has never been connected or was disconnected.
func (r *ConnectionRepository) Get(ctx context.Context) (*XeroConnection, error) {
	query := `
		SELECT connection_id, tenant_id, tenant_name, access_token, refresh_token,
		       token_type, expiry, connected_at, updated_at
		FROM xero_connections
		WHERE id = 1
	`

	c := &XeroConnection{}
	err := r.db.QueryRow(ctx, query).Scan(
		&c.ConnectionID,
		&c.TenantID,
		&c.TenantName,
		&c.AccessToken,
		&c.RefreshToken,
		&c.TokenType,
		&c.Expiry,
		&c.ConnectedAt,
		&c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.ErrCodeNoCredentials, "Xero is not connected")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get xero connection")
	}
	return c, nil
}

// Save replaces the stored connection.
func (r *ConnectionRepository) Save(ctx context.Context, c *XeroConnection) error {
	query := `
		INSERT INTO xero_connections (id, connection_id, tenant_id, tenant_name, access_token,
		                              refresh_token, token_type, expiry, connected_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET connection_id = EXCLUDED.connection_id,
		    tenant_id = EXCLUDED.tenant_id,
		    tenant_name = EXCLUDED.tenant_name,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry,
		    connected_at = NOW(),
		    updated_at = NOW()
		RETURNING connected_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.ConnectionID,
		c.TenantID,
		c.TenantName,
		c.AccessToken,
		c.RefreshToken,
		c.TokenType,
		c.Expiry,
	).Scan(&c.ConnectedAt, &c.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save xero connection")
	}
	return nil
}

// UpdateTokens stores refreshed tokens without touching the tenant.
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, accessToken, refreshToken, tokenType string, expiry time.Time) error {
	query := `
		UPDATE xero_connections
		SET access_token = $1, refresh_token = $2, token_type = $3, expiry = $4, updated_at = NOW()
		WHERE id = 1
	`

	tag, err := r.db.Exec(ctx, query, accessToken, refreshToken, tokenType, expiry)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update xero tokens")
	}
	if tag.RowsAffected() == 0 {
		return errors.New(errors.ErrCodeNoCredentials, "Xero is not connected")
	}
	return nil
}

// Delete removes the stored connection. Deleting nothing is not an error.
func (r *ConnectionRepository) Delete(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM xero_connections WHERE id = 1`); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete xero connection")
	}
	return nil
}
