// Package auth carries the authenticated principal through request contexts
// and issues/parses the bearer tokens the HTTP layer accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stake-plus/stratomai-agents/src/api/apierr"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying userID as the caller identity.
func WithPrincipal(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, principalKey{}, userID)
}

// PrincipalFrom returns the caller identity stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(principalKey{}).(string)
	return id, ok && id != ""
}

// RequirePrincipal is PrincipalFrom that fails with apierr.ErrUnauthorized.
func RequirePrincipal(ctx context.Context) (string, error) {
	id, ok := PrincipalFrom(ctx)
	if !ok {
		return "", apierr.ErrUnauthorized
	}
	return id, nil
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(secret)
}

// ParseToken validates tokenStr and returns its subject.
func ParseToken(secret []byte, tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", apierr.ErrUnauthorized, err)
	}
	if !tok.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apierr.ErrUnauthorized)
	}
	return claims.Subject, nil
}
