package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by redis keyed expiry; entries vanish
// on their own when the token would have expired anyway.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{
		client: client,
	}
}

func (that *redisStore) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if err := that.client.Set(ctx, revokedKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to store revocation: %w", err)
	}

	return nil
}

func (that *redisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, err := that.client.Get(ctx, revokedKey(token)).Result()

	if errors.Is(err, redis.Nil) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}

	return true, nil
}

func revokedKey(token string) string {
	return "revoked:" + token
}
