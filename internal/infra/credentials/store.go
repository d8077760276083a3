// Package credentials stores per-site gateway keys in the database so
// operators can rotate them without redeploying. Environment values act as
// the fallback when no stored key exists.
package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"giveserver/internal/infra"
)

const (
	ProviderStripeSecret      = "stripe_secret"
	ProviderStripePublishable = "stripe_publishable"
)

// Store reads and writes integration credentials.
type Store struct {
	pool *pgxpool.Pool

	// Environment fallbacks used when the table has no row.
	fallbackSecret      string
	fallbackPublishable string
}

// NewStore builds a credentials store with environment fallbacks.
func NewStore(pool *pgxpool.Pool, fallbackSecret, fallbackPublishable string) *Store {
	return &Store{
		pool:                pool,
		fallbackSecret:      strings.TrimSpace(fallbackSecret),
		fallbackPublishable: strings.TrimSpace(fallbackPublishable),
	}
}

// StripeSecretKey returns the stored secret key, or the environment fallback
// when none is stored.
func (s *Store) StripeSecretKey(ctx context.Context) (string, error) {
	key, err := s.token(ctx, ProviderStripeSecret)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = s.fallbackSecret
	}
	return key, nil
}

// StripePublishableKey returns the publishable key handed to the client-side
// tokenization script.
func (s *Store) StripePublishableKey(ctx context.Context) (string, error) {
	key, err := s.token(ctx, ProviderStripePublishable)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = s.fallbackPublishable
	}
	return key, nil
}

// SetStripeSecretKey stores the secret key.
func (s *Store) SetStripeSecretKey(ctx context.Context, key string) error {
	return s.upsert(ctx, ProviderStripeSecret, key)
}

// SetStripePublishableKey stores the publishable key.
func (s *Store) SetStripePublishableKey(ctx context.Context, key string) error {
	return s.upsert(ctx, ProviderStripePublishable, key)
}

func (s *Store) token(ctx context.Context, provider string) (string, error) {
	row := s.pool.QueryRow(ctx, `
SELECT token
FROM integration_credentials
WHERE provider = $1;
`, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) upsert(ctx context.Context, provider, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential value is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO integration_credentials (provider, token)
VALUES ($1, $2)
ON CONFLICT (provider) DO UPDATE SET token = EXCLUDED.token;
`, provider, token)
	return err
}
