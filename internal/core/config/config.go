package config

import (
	"time"

	redisclient "github.com/vietddude/txmanager/internal/infra/redis"
	"github.com/vietddude/txmanager/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chain    ChainConfig        `yaml:"chain"`
	Tracker  TrackerConfig      `yaml:"tracker"`
	Nonce    NonceConfig        `yaml:"nonce"`
	Journal  JournalConfig      `yaml:"journal"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ChainConfig holds settings for the chain transactions are sent to.
type ChainConfig struct {
	ID            uint64           `yaml:"id"`
	RPCURL        string           `yaml:"rpc_url"` // shorthand for a single provider
	Providers     []ProviderConfig `yaml:"providers"`
	From          string           `yaml:"from"`
	Gas           uint64           `yaml:"gas"`
	GasPrice      string           `yaml:"gas_price"` // wei, decimal; empty = ask the node
	ProxyAddress  string           `yaml:"proxy_address"`
	PollInterval  time.Duration    `yaml:"poll_interval"`
	DropTimeout   time.Duration    `yaml:"drop_timeout"`
	Confirmations uint64           `yaml:"confirmations"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TrackerConfig holds in-memory tracking settings.
type TrackerConfig struct {
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// NonceConfig selects the nonce allocator.
type NonceConfig struct {
	Backend string `yaml:"backend"` // memory, redis
}

// JournalConfig selects where lifecycle events are recorded.
type JournalConfig struct {
	Backend      string        `yaml:"backend"` // none, memory, bolt, postgres
	BoltPath     string        `yaml:"bolt_path"`
	Stream       string        `yaml:"stream"` // Redis stream name; empty = disabled
	StreamMaxLen int64         `yaml:"stream_max_len"`
	Retention    time.Duration `yaml:"retention"` // 0 = keep forever
}
