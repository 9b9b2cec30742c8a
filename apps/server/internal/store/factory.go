package store

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
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_MODE")))
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

// NewBundleFromEnv selects a store mode via STORE_MODE (memory|sqlite|postgres,
// default memory) and constructs its Bundle.
func NewBundleFromEnv() (*Bundle, string, error) {
	mode := modeFromEnv()
	switch mode {
	case ModeMemory:
		return NewMemoryBundle(), mode, nil
	case ModeSQLite:
		b, err := NewSQLiteBundleFromEnv()
		return b, mode, err
	case ModePostgres:
		b, err := NewPostgresBundleFromEnv()
		return b, mode, err
	default:
		return nil, mode, fmt.Errorf("invalid STORE_MODE %q (supported: %s, %s, %s)", mode, ModeMemory, ModeSQLite, ModePostgres)
	}
}
