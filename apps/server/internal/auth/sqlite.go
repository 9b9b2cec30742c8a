package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"towerplane/session"
)

const defaultTokenDBName = "towerplane_tokens.db"

// SQLiteValidator resolves tokens against a single-process sqlite database.
type SQLiteValidator struct {
	db *sql.DB
}

func NewSQLiteValidatorFromEnv() (*SQLiteValidator, error) {
	path := strings.TrimSpace(os.Getenv("TOWERPLANE_AUTH_SQLITE_PATH"))
	if path == "" {
		path = defaultTokenDBName
	}
	return NewSQLiteValidator(path)
}

func NewSQLiteValidator(dbPath string) (*SQLiteValidator, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("auth: empty sqlite database path")
	}
	if dbPath != ":memory:" {
		if parent := filepath.Dir(dbPath); parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS auth_tokens (
    lookup_id TEXT PRIMARY KEY,
    secret_hash TEXT NOT NULL,
    player_id TEXT NOT NULL,
    expires_at_ms INTEGER NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteValidator{db: db}, nil
}

func (v *SQLiteValidator) Validate(ctx context.Context, token string) (session.PlayerID, error) {
	lookupID, secret, ok := splitOpaqueToken(token)
	if !ok {
		return "", ErrInvalidToken
	}
	var playerID, secretHash string
	var expiresMs int64
	err := v.db.QueryRowContext(ctx, `SELECT player_id, secret_hash, expires_at_ms FROM auth_tokens WHERE lookup_id = ?`, lookupID).
		Scan(&playerID, &secretHash, &expiresMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	if !verifySecret([]byte(secretHash), secret) {
		return "", ErrInvalidToken
	}
	if time.Now().After(time.UnixMilli(expiresMs)) {
		_, _ = v.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE lookup_id = ?`, lookupID)
		return "", ErrInvalidToken
	}
	return session.PlayerID(playerID), nil
}

func (v *SQLiteValidator) IssueToken(ctx context.Context, player session.PlayerID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	lookupID := uuid.NewString()
	token, hash, err := mintOpaqueToken(lookupID)
	if err != nil {
		return "", err
	}
	expires := time.Now().Add(ttl).UnixMilli()
	if _, err := v.db.ExecContext(ctx, `
INSERT INTO auth_tokens (lookup_id, secret_hash, player_id, expires_at_ms) VALUES (?, ?, ?, ?)`,
		lookupID, string(hash), string(player), expires); err != nil {
		return "", err
	}
	return token, nil
}

func (v *SQLiteValidator) Close() error {
	if v == nil || v.db == nil {
		return nil
	}
	return v.db.Close()
}
