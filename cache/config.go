package cache

import (
	"time"

	appErrors "pulsefeed-cache/pkg/errors"
)

// Config controls engine behavior.
type Config struct {
	// Namespace identifies the engine instance and scopes its log output.
	// Pass the same value to store.NewPersistent and
	// observability.NewCollector so storage keys and metric names share it.
	Namespace string

	// DefaultTTL applies when a fetch is issued without an explicit TTL.
	DefaultTTL time.Duration

	// MemoryMaxEntries bounds the engine-owned memory tier; zero or less
	// means unbounded.
	MemoryMaxEntries int

	// JanitorInterval is the period of the memory tier sweep.
	JanitorInterval time.Duration
}

// DefaultConfig returns sensible defaults for the engine.
func DefaultConfig() Config {
	return Config{
		Namespace:        "pulsefeed",
		DefaultTTL:       5 * time.Minute,
		MemoryMaxEntries: 10000,
		JanitorInterval:  time.Minute,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return appErrors.NewValidation("namespace must not be empty")
	}
	if c.DefaultTTL <= 0 {
		return appErrors.NewValidation("default TTL must be positive")
	}
	if c.JanitorInterval <= 0 {
		return appErrors.NewValidation("janitor interval must be positive")
	}
	return nil
}
