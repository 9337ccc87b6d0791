package config

import (
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Chain.RPCURL != "" && len(c.Chain.Providers) == 0 {
		c.Chain.Providers = []ProviderConfig{{Name: "default", URL: c.Chain.RPCURL}}
	}
	for i := range c.Chain.Providers {
		if c.Chain.Providers[i].Name == "" {
			c.Chain.Providers[i].Name = fmt.Sprintf("provider-%d", i)
		}
		if c.Chain.Providers[i].Timeout == 0 {
			c.Chain.Providers[i].Timeout = 30 * time.Second
		}
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Chain.DropTimeout == 0 {
		c.Chain.DropTimeout = 10 * time.Minute
	}
	if c.Chain.Confirmations == 0 {
		c.Chain.Confirmations = 1
	}
	if c.Tracker.Retention == 0 {
		c.Tracker.Retention = 5 * time.Minute
	}
	if c.Tracker.SweepInterval == 0 {
		c.Tracker.SweepInterval = time.Minute
	}
	if c.Nonce.Backend == "" {
		c.Nonce.Backend = "memory"
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = "memory"
	}
	if c.Journal.Backend == "bolt" && c.Journal.BoltPath == "" {
		c.Journal.BoltPath = "txmanager.db"
	}
	if c.Journal.StreamMaxLen == 0 {
		c.Journal.StreamMaxLen = 10000
	}
}

// Validate checks the configuration for settings that cannot work together.
func (c *AppConfig) Validate() error {
	if len(c.Chain.Providers) == 0 {
		return fmt.Errorf("chain: at least one provider (or rpc_url) is required")
	}
	if c.Chain.From == "" {
		return fmt.Errorf("chain: from address is required")
	}
	if _, err := c.Chain.GasPriceWei(); err != nil {
		return err
	}

	switch c.Nonce.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("nonce: redis backend requires redis.url")
		}
	default:
		return fmt.Errorf("nonce: unknown backend %q", c.Nonce.Backend)
	}

	switch c.Journal.Backend {
	case "none", "memory", "bolt":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("journal: postgres backend requires database.url")
		}
	default:
		return fmt.Errorf("journal: unknown backend %q", c.Journal.Backend)
	}
	if c.Journal.Stream != "" && c.Redis.URL == "" {
		return fmt.Errorf("journal: stream requires redis.url")
	}
	return nil
}

// GasPriceWei parses the configured gas price. It returns nil when unset.
func (c ChainConfig) GasPriceWei() (*uint256.Int, error) {
	if c.GasPrice == "" {
		return nil, nil
	}
	n, err := uint256.FromDecimal(c.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid gas_price %q: %w", c.GasPrice, err)
	}
	return n, nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *AppConfig) UsesRedis() bool {
	return c.Nonce.Backend == "redis" || c.Journal.Stream != ""
}
