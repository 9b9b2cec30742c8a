package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"towerplane/session"
)

type tokenRecord struct {
	player     session.PlayerID
	secretHash []byte
	expiresAt  time.Time
}

// MemoryValidator is the in-process token store for local development and
// the test suite: a bcrypt-hashed secret with token generation via
// crypto/rand.
type MemoryValidator struct {
	mu     sync.Mutex
	tokens map[string]tokenRecord
}

func NewMemoryValidator() *MemoryValidator {
	return &MemoryValidator{tokens: make(map[string]tokenRecord)}
}

func (m *MemoryValidator) Validate(_ context.Context, token string) (session.PlayerID, error) {
	lookupID, secret, ok := splitOpaqueToken(token)
	if !ok {
		return "", ErrInvalidToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[lookupID]
	if !ok || !verifySecret(rec.secretHash, secret) {
		return "", ErrInvalidToken
	}
	if time.Now().After(rec.expiresAt) {
		delete(m.tokens, lookupID)
		return "", ErrInvalidToken
	}
	return rec.player, nil
}

func (m *MemoryValidator) IssueToken(_ context.Context, player session.PlayerID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	lookupID := uuid.NewString()
	token, hash, err := mintOpaqueToken(lookupID)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.tokens[lookupID] = tokenRecord{player: player, secretHash: hash, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return token, nil
}

func (m *MemoryValidator) Close() error { return nil }
