package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// ContractID is the escrow account the worker signs for when a job does
	// not name one.
	ContractID string

	// PrivateKey is the escrow account's ed25519 key, base58 with an
	// optional "ed25519:" prefix.
	PrivateKey string

	NearRPCURL        string
	IntentsRPCURL     string
	IntentsContractID string

	LogLevel    string
	PostgresDSN string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".intent-swap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("near_rpc_url", "https://rpc.mainnet.near.org")
	viper.SetDefault("intents_rpc_url", "https://solver-relay-v2.chaindefuser.com/rpc")
	viper.SetDefault("intents_contract_id", "intents.near")
	viper.SetDefault("log_level", "info")

	// Read from environment variables (SWAP_CONTRACT_ID,
	// SWAP_CONTRACT_PRIVATE_KEY, NEAR_RPC_URL, ...)
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		ContractID:        viper.GetString("swap_contract_id"),
		PrivateKey:        viper.GetString("swap_contract_private_key"),
		NearRPCURL:        viper.GetString("near_rpc_url"),
		IntentsRPCURL:     viper.GetString("intents_rpc_url"),
		IntentsContractID: viper.GetString("intents_contract_id"),
		LogLevel:          viper.GetString("log_level"),
		PostgresDSN:       viper.GetString("postgres_dsn"),
	}

	globalConfig = cfg
	return cfg, nil
}

// WorkerReady reports whether the signing key needed to execute swaps is
// present. The message is what the worker reports to its caller, so keep it
// stable.
func (c *Config) WorkerReady() error {
	if c.PrivateKey == "" {
		return errors.New("SWAP_CONTRACT_PRIVATE_KEY not found in environment")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
