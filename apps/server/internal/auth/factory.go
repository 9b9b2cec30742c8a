package auth

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

func modeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeSQLite, "local":
		return ModeSQLite
	case ModePostgres, "db", "postgresql":
		return ModePostgres
	default:
		return raw
	}
}

// NewValidatorFromEnv selects a validator mode via AUTH_MODE
// (memory|sqlite|postgres, default memory) and constructs it.
func NewValidatorFromEnv() (TokenValidator, string, error) {
	mode := modeFromEnv()
	switch mode {
	case ModeMemory:
		return NewMemoryValidator(), mode, nil
	case ModeSQLite:
		v, err := NewSQLiteValidatorFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return v, mode, nil
	case ModePostgres:
		v, err := NewPostgresValidatorFromEnv()
		if err != nil {
			return nil, mode, err
		}
		return v, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid AUTH_MODE %q (supported: %s, %s, %s)", mode, ModeMemory, ModeSQLite, ModePostgres)
	}
}
