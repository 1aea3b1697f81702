package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenDenylistDisabled(t *testing.T) {
	denylist := NewTokenDenylist(nil)
	assert.False(t, denylist.Enabled())

	require.NoError(t, denylist.Revoke(context.Background(), "jti-1", time.Now().Add(time.Hour)))
	revoked, err := denylist.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestTokenDenylistSkipsExpiredTokens(t *testing.T) {
	// The client points at a closed port; an expired token must not reach it.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	denylist := NewTokenDenylist(client)
	assert.NoError(t, denylist.Revoke(context.Background(), "jti-1", time.Now().Add(-time.Minute)))
}

func TestTokenDenylistReportsRedisErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	denylist := NewTokenDenylist(client)
	assert.Error(t, denylist.Revoke(context.Background(), "jti-1", time.Now().Add(time.Hour)))

	_, err := denylist.IsRevoked(context.Background(), "jti-1")
	assert.Error(t, err)
}
