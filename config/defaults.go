package config

// DefaultMainnet returns the default node configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Backend: StorageBadger,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default node configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	return cfg
}

// DefaultFakechain returns the default configuration for a local
// simulation: in-memory storage and debug logging.
func DefaultFakechain() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Fakechain
	cfg.Storage.Backend = StorageMemory
	cfg.Log.Level = "debug"
	return cfg
}

// Default returns the default node configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Fakechain:
		return DefaultFakechain()
	default:
		return DefaultMainnet()
	}
}
