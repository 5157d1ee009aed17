package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skyhallinc/skyhall-backend/internal/revocation"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token has been revoked")
)

// AuthService mints and resolves the short-lived bearer tokens that gate
// every mutating action. Revoked tokens are tracked in an injected store so
// logout works before the token's natural expiry.
type AuthService struct {
	secretKey string
	tokenTTL  time.Duration
	revoked   revocation.Store
}

func NewAuthService(secretKey string, tokenTTL time.Duration, revoked revocation.Store) *AuthService {
	return &AuthService{
		secretKey: secretKey,
		tokenTTL:  tokenTTL,
		revoked:   revoked,
	}
}

// IssueToken signs a token for the given player identity.
func (that *AuthService) IssueToken(playerID string) (string, error) {
	claims := jwt.MapClaims{
		"sub": playerID,
		"exp": time.Now().Add(that.tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(that.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ResolveToken validates a bearer token and returns the player identity.
func (that *AuthService) ResolveToken(ctx context.Context, tokenString string) (string, error) {
	revoked, err := that.revoked.IsRevoked(ctx, tokenString)
	if err != nil {
		return "", fmt.Errorf("failed to check revocation: %w", err)
	}

	if revoked {
		return "", ErrTokenRevoked
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, token.Header["alg"])
		}

		return []byte(that.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	playerID, err := token.Claims.GetSubject()
	if err != nil || playerID == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return playerID, nil
}

// RevokeToken invalidates a token for the rest of its lifetime.
func (that *AuthService) RevokeToken(ctx context.Context, tokenString string) error {
	if err := that.revoked.Revoke(ctx, tokenString, that.tokenTTL); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}
