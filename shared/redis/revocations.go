package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "auth:revoked:"

// TokenRevocations records the moment all of a user's tokens were revoked.
// Markers expire after the longest token lifetime, when every token they
// cover has expired anyway.
type TokenRevocations struct {
	client   *goredis.Client
	lifetime time.Duration
}

func NewTokenRevocations(client *goredis.Client, tokenLifetime time.Duration) *TokenRevocations {
	return &TokenRevocations{client: client, lifetime: tokenLifetime}
}

// Revoke invalidates every token issued to username at or before at.
func (r *TokenRevocations) Revoke(ctx context.Context, username string, at time.Time) error {
	err := r.client.Set(ctx, revokedKeyPrefix+username, at.Unix(), r.lifetime).Err()
	if err != nil {
		return fmt.Errorf("failed to revoke tokens for %s: %w", username, err)
	}
	return nil
}

func (r *TokenRevocations) RevokedAt(ctx context.Context, username string) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, revokedKeyPrefix+username).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read revocation for %s: %w", username, err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed revocation marker for %s: %w", username, err)
	}
	return time.Unix(unix, 0), true, nil
}
