package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/medledger/indexer-go/internal/constants"
)

// Config holds all configuration for the indexer
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	Store   StoreConfig   `yaml:"store"`
	Indexer IndexerConfig `yaml:"indexer"`
	Ops     OpsConfig     `yaml:"ops"`
	Log     LogConfig     `yaml:"log"`
}

// ChainConfig holds chain connection configuration
type ChainConfig struct {
	// WSEndpoint is the WebSocket endpoint used for the log subscription
	WSEndpoint string `yaml:"ws_endpoint"`
	// RPCEndpoint is the HTTP(S) endpoint used for read-only calls
	RPCEndpoint string `yaml:"rpc_endpoint"`
	// ContractAddress is the registry contract emitting the events
	ContractAddress string `yaml:"contract_address"`
	// ReadTimeout bounds each read-only chain call
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// ReadRate limits read-only calls per second
	ReadRate int `yaml:"read_rate"`
	// ReadBurst is the read rate limiter burst size
	ReadBurst int `yaml:"read_burst"`
}

// StoreConfig holds document store configuration
type StoreConfig struct {
	Path          string `yaml:"path"`
	CacheMB       int    `yaml:"cache_mb"`
	WriteBufferMB int    `yaml:"write_buffer_mb"`
	ReadOnly      bool   `yaml:"readonly"`
}

// IndexerConfig holds dispatch configuration
type IndexerConfig struct {
	// Workers is the number of projection workers
	Workers int `yaml:"workers"`
	// QueueSize is the capacity of the bounded work queue
	QueueSize int `yaml:"queue_size"`
	// ReconnectBackoff is the fixed delay between subscription attempts
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

// OpsConfig holds ops server configuration
type OpsConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	RateLimitPerSecond int    `yaml:"rate_limit_per_second"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// Read-only calls fall back to the subscription endpoint; ethclient
	// speaks both ws and http schemes.
	if c.Chain.RPCEndpoint == "" {
		c.Chain.RPCEndpoint = c.Chain.WSEndpoint
	}
	if c.Chain.ReadTimeout == 0 {
		c.Chain.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.Chain.ReadRate == 0 {
		c.Chain.ReadRate = constants.DefaultReadRate
	}
	if c.Chain.ReadBurst == 0 {
		c.Chain.ReadBurst = constants.DefaultReadBurst
	}

	if c.Store.CacheMB == 0 {
		c.Store.CacheMB = constants.DefaultCacheSize
	}
	if c.Store.WriteBufferMB == 0 {
		c.Store.WriteBufferMB = constants.DefaultWriteBuffer
	}

	if c.Indexer.Workers == 0 {
		c.Indexer.Workers = constants.DefaultNumWorkers
	}
	if c.Indexer.QueueSize == 0 {
		c.Indexer.QueueSize = constants.DefaultQueueSize
	}
	if c.Indexer.ReconnectBackoff == 0 {
		c.Indexer.ReconnectBackoff = constants.DefaultReconnectBackoff
	}

	if c.Ops.Host == "" {
		c.Ops.Host = constants.DefaultOpsHost
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = constants.DefaultOpsPort
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("INDEXER_CHAIN_WS_ENDPOINT"); endpoint != "" {
		c.Chain.WSEndpoint = endpoint
	}
	if endpoint := os.Getenv("INDEXER_CHAIN_RPC_ENDPOINT"); endpoint != "" {
		c.Chain.RPCEndpoint = endpoint
	}
	if addr := os.Getenv("INDEXER_CONTRACT_ADDRESS"); addr != "" {
		c.Chain.ContractAddress = addr
	}
	if timeout := os.Getenv("INDEXER_READ_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_READ_TIMEOUT: %w", err)
		}
		c.Chain.ReadTimeout = duration
	}

	if path := os.Getenv("INDEXER_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if readonly := os.Getenv("INDEXER_STORE_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_STORE_READONLY: %w", err)
		}
		c.Store.ReadOnly = val
	}

	if workers := os.Getenv("INDEXER_WORKERS"); workers != "" {
		val, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_WORKERS: %w", err)
		}
		c.Indexer.Workers = val
	}
	if queueSize := os.Getenv("INDEXER_QUEUE_SIZE"); queueSize != "" {
		val, err := strconv.Atoi(queueSize)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_QUEUE_SIZE: %w", err)
		}
		c.Indexer.QueueSize = val
	}
	if backoff := os.Getenv("INDEXER_RECONNECT_BACKOFF"); backoff != "" {
		duration, err := time.ParseDuration(backoff)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_RECONNECT_BACKOFF: %w", err)
		}
		c.Indexer.ReconnectBackoff = duration
	}

	if enabled := os.Getenv("INDEXER_OPS_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_OPS_ENABLED: %w", err)
		}
		c.Ops.Enabled = val
	}
	if host := os.Getenv("INDEXER_OPS_HOST"); host != "" {
		c.Ops.Host = host
	}
	if port := os.Getenv("INDEXER_OPS_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid INDEXER_OPS_PORT: %w", err)
		}
		c.Ops.Port = val
	}

	if level := os.Getenv("INDEXER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("INDEXER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.WSEndpoint == "" {
		return fmt.Errorf("chain WS endpoint is required")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if !common.IsHexAddress(c.Chain.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", c.Chain.ContractAddress)
	}
	if c.Chain.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Chain.ReadRate <= 0 {
		return fmt.Errorf("read rate must be positive")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if c.Indexer.Workers < constants.MinWorkers || c.Indexer.Workers > constants.MaxWorkers {
		return fmt.Errorf("worker count must be between %d and %d", constants.MinWorkers, constants.MaxWorkers)
	}
	if c.Indexer.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if c.Indexer.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect backoff must be positive")
	}

	if c.Ops.Enabled {
		if c.Ops.Port < constants.MinPort || c.Ops.Port > constants.MaxPort {
			return fmt.Errorf("invalid ops port %d", c.Ops.Port)
		}
		// Zero leaves the ops endpoints unthrottled.
		if c.Ops.RateLimitPerSecond < 0 {
			return fmt.Errorf("ops rate limit cannot be negative")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	return nil
}

// ContractAddr returns the parsed contract address. Call Validate first.
func (c *Config) ContractAddr() common.Address {
	return common.HexToAddress(c.Chain.ContractAddress)
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for any missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
