// Package revocation tracks bearer tokens that were invalidated before their
// natural expiry. The store is injected wherever tokens are resolved, with a
// durable keyed-expiry backend for production and an in-process one for
// single-node or test setups.
package revocation

import (
	"context"
	"time"
)

type Store interface {
	// Revoke marks a token as invalid for the rest of its lifetime.
	Revoke(ctx context.Context, token string, ttl time.Duration) error

	// IsRevoked reports whether the token was revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)
}
