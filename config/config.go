// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: fixed per network, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies the network a node runs on.
type NetworkType string

const (
	Mainnet   NetworkType = "mainnet"
	Testnet   NetworkType = "testnet"
	Fakechain NetworkType = "fakechain"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Block storage
	Storage StorageConfig

	// Service node operator settings
	ServiceNode ServiceNodeConfig

	// Logging
	Log LogConfig
}

// StorageBackend selects the block store implementation.
type StorageBackend string

const (
	StorageBadger StorageBackend = "badger"
	StorageMemory StorageBackend = "memory"
)

// StorageConfig holds block store settings.
type StorageConfig struct {
	Backend StorageBackend `conf:"db.backend"`
}

// ServiceNodeConfig holds settings for operating a service node.
type ServiceNodeConfig struct {
	// KeyFile is an encrypted key file written by snode-keygen. When set
	// the daemon reports whether this node is currently registered.
	KeyFile string `conf:"servicenode.keyfile"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-snode
//	macOS:   ~/Library/Application Support/KlingnetSnode
//	Windows: %APPDATA%\KlingnetSnode
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-snode"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetSnode")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "KlingnetSnode")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetSnode")
	default:
		return filepath.Join(home, ".klingnet-snode")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// BlocksDir returns the block database directory.
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blocks")
}

// KeystoreDir returns the service node key directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "snode.conf")
}
