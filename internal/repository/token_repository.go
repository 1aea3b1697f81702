package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedTokenPrefix = "auth:revoked:"

// TokenDenylist records revoked access tokens in Redis until they expire.
// A nil client turns every operation into a no-op.
type TokenDenylist struct {
	client *redis.Client
}

// NewTokenDenylist constructs a denylist backed by client.
func NewTokenDenylist(client *redis.Client) *TokenDenylist {
	return &TokenDenylist{client: client}
}

// Enabled reports whether revocations are persisted.
func (d *TokenDenylist) Enabled() bool {
	return d != nil && d.client != nil
}

// Revoke denylists the token id until expiresAt. Already expired tokens are skipped.
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if !d.Enabled() || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, revokedTokenPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether the token id has been denylisted.
func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if !d.Enabled() || jti == "" {
		return false, nil
	}
	err := d.client.Get(ctx, revokedTokenPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("check revoked token: %w", err)
	}
}
