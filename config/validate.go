package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Fakechain:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Fakechain)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBadger
	}
	switch cfg.Storage.Backend {
	case StorageBadger, StorageMemory:
	default:
		return fmt.Errorf("db.backend must be %q or %q", StorageBadger, StorageMemory)
	}
	if cfg.DataDir == "" && cfg.Storage.Backend == StorageBadger {
		return fmt.Errorf("datadir is required for the badger backend")
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	return nil
}
