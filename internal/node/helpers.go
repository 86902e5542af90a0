package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-snode/config"
	klog "github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/internal/wallet"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openStorage opens the block store selected by cfg.
func openStorage(cfg *config.Config) (storage.DB, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		klog.Storage.Info().Msg("Using in-memory block store")
		return storage.NewMemory(), nil
	case config.StorageBadger, "":
		path := cfg.BlocksDir()
		db, err := storage.NewBadger(path)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", path, err)
		}
		klog.Storage.Info().Str("path", path).Msg("Database opened")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// loadOperator reads the public part of a key file and checks it belongs
// to network. No password is needed.
func loadOperator(path string, network config.NetworkType) (*wallet.KeyFileInfo, error) {
	info, err := wallet.ReadKeyFileInfo(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("load service node key file: %w", err)
	}
	if info.Network != string(network) {
		return nil, fmt.Errorf("%w: file is for %q, node runs %q", ErrKeyFileNetwork, info.Network, network)
	}
	return info, nil
}
