// Package auth implements bearer-token resolution to a PlayerID, in three
// backing modes (memory|sqlite|postgres) selected by a factory. It is
// restricted to validation and dev-token issuance; registration flows are
// assumed to be provisioned by an external identity system.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"towerplane/session"
)

var (
	// ErrInvalidToken is returned by Validate for an unknown or expired token.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
)

// TokenValidator resolves a bearer token to the PlayerID it was issued for.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (session.PlayerID, error)
	Close() error
}

// TokenIssuer is implemented by validator modes that can also mint tokens.
// All three modes (memory, sqlite, postgres) implement it; no HTTP surface
// wraps it.
type TokenIssuer interface {
	IssueToken(ctx context.Context, player session.PlayerID, ttl time.Duration) (string, error)
}

const defaultTokenTTL = 24 * time.Hour

const secretBytes = 24

// mintOpaqueToken generates a token of the form "<lookupID>.<secret>" and
// returns the token alongside a bcrypt hash of secret. Validators store the
// hash, never the secret itself, and key lookup by lookupID rather than
// scanning every stored hash.
func mintOpaqueToken(lookupID string) (token string, secretHash []byte, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	return lookupID + "." + secret, hash, nil
}

// splitOpaqueToken parses a token minted by mintOpaqueToken.
func splitOpaqueToken(token string) (lookupID, secret string, ok bool) {
	i := strings.LastIndexByte(token, '.')
	if i <= 0 || i == len(token)-1 {
		return "", "", false
	}
	return token[:i], token[i+1:], true
}

// verifySecret reports whether secret matches the bcrypt hash on record.
func verifySecret(hash []byte, secret string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret)) == nil
}
