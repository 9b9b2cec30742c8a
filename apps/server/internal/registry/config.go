package registry

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the process-wide configuration. Every field is validated at
// load; an invalid value fails process startup with a descriptive error
// rather than being silently clamped.
type Config struct {
	DesignOrder            int
	DefaultMaxPlayers      int
	DefaultMaxRounds       int
	MinPlayers             int
	MaxPlayers             int
	MinRounds              int
	MaxRounds              int
	ShuffleDeck            bool
	RandomSeed             *int64
	MaxInboundMessageBytes int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DesignOrder:            7,
		DefaultMaxPlayers:      4,
		DefaultMaxRounds:       10,
		MinPlayers:             2,
		MaxPlayers:             8,
		MinRounds:              1,
		MaxRounds:              30,
		ShuffleDeck:            true,
		RandomSeed:             nil,
		MaxInboundMessageBytes: 32768,
	}
}

// ConfigFromEnv loads Config from the environment, starting from
// DefaultConfig and overriding fields that are explicitly set.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, name := range []string{
		"TOWERPLANE_DESIGN_ORDER", "TOWERPLANE_DEFAULT_MAX_PLAYERS", "TOWERPLANE_DEFAULT_MAX_ROUNDS",
		"TOWERPLANE_MIN_PLAYERS", "TOWERPLANE_MAX_PLAYERS", "TOWERPLANE_MIN_ROUNDS",
		"TOWERPLANE_MAX_ROUNDS", "TOWERPLANE_MAX_INBOUND_MESSAGE_BYTES",
	} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				return Config{}, fmt.Errorf("registry: invalid %s %q: %w", name, v, err)
			}
		}
	}

	if v, ok := envInt("TOWERPLANE_DESIGN_ORDER"); ok {
		cfg.DesignOrder = v
	}
	if v, ok := envInt("TOWERPLANE_DEFAULT_MAX_PLAYERS"); ok {
		cfg.DefaultMaxPlayers = v
	}
	if v, ok := envInt("TOWERPLANE_DEFAULT_MAX_ROUNDS"); ok {
		cfg.DefaultMaxRounds = v
	}
	if v, ok := envInt("TOWERPLANE_MIN_PLAYERS"); ok {
		cfg.MinPlayers = v
	}
	if v, ok := envInt("TOWERPLANE_MAX_PLAYERS"); ok {
		cfg.MaxPlayers = v
	}
	if v, ok := envInt("TOWERPLANE_MIN_ROUNDS"); ok {
		cfg.MinRounds = v
	}
	if v, ok := envInt("TOWERPLANE_MAX_ROUNDS"); ok {
		cfg.MaxRounds = v
	}
	if v := strings.TrimSpace(os.Getenv("TOWERPLANE_SHUFFLE_DECK")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("registry: invalid TOWERPLANE_SHUFFLE_DECK %q: %w", v, err)
		}
		cfg.ShuffleDeck = b
	}
	if v := strings.TrimSpace(os.Getenv("TOWERPLANE_RANDOM_SEED")); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || seed < 0 {
			return Config{}, fmt.Errorf("registry: invalid TOWERPLANE_RANDOM_SEED %q", v)
		}
		cfg.RandomSeed = &seed
	}
	if v, ok := envInt("TOWERPLANE_MAX_INBOUND_MESSAGE_BYTES"); ok {
		cfg.MaxInboundMessageBytes = v
	}

	return cfg, cfg.validate()
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c Config) validate() error {
	if !isPrimeOrder(c.DesignOrder) {
		return fmt.Errorf("registry: DesignOrder must be prime, got %d", c.DesignOrder)
	}
	if c.MinPlayers < 2 || c.MinPlayers > c.MaxPlayers {
		return fmt.Errorf("registry: MinPlayers must be in [2, MaxPlayers], got %d", c.MinPlayers)
	}
	if c.MaxPlayers > 8 {
		return fmt.Errorf("registry: MaxPlayers must be <= 8, got %d", c.MaxPlayers)
	}
	if c.DefaultMaxPlayers < c.MinPlayers || c.DefaultMaxPlayers > c.MaxPlayers {
		return fmt.Errorf("registry: DefaultMaxPlayers must be in [MinPlayers, MaxPlayers], got %d", c.DefaultMaxPlayers)
	}
	if c.MinRounds < 1 || c.MinRounds > c.MaxRounds {
		return fmt.Errorf("registry: MinRounds must be in [1, MaxRounds], got %d", c.MinRounds)
	}
	if c.MaxRounds > 30 {
		return fmt.Errorf("registry: MaxRounds must be <= 30, got %d", c.MaxRounds)
	}
	if c.DefaultMaxRounds < c.MinRounds || c.DefaultMaxRounds > c.MaxRounds {
		return fmt.Errorf("registry: DefaultMaxRounds must be in [MinRounds, MaxRounds], got %d", c.DefaultMaxRounds)
	}
	if c.MaxInboundMessageBytes < 1024 {
		return fmt.Errorf("registry: MaxInboundMessageBytes must be >= 1024, got %d", c.MaxInboundMessageBytes)
	}
	return nil
}

func isPrimeOrder(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}
