package api

import (
	"fmt"
	"time"

	"github.com/medledger/indexer-go/internal/constants"
)

// Config holds ops server configuration
type Config struct {
	// Host is the listen address
	Host string
	// Port is the listen port
	Port int

	// RateLimitPerSecond caps requests per client IP; zero disables limiting
	RateLimitPerSecond float64
	// RateLimitBurst is the limiter burst size
	RateLimitBurst int

	// HTTP server timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns an ops server configuration with defaults applied
func DefaultConfig() *Config {
	return &Config{
		Host:               constants.DefaultOpsHost,
		Port:               constants.DefaultOpsPort,
		RateLimitPerSecond: constants.DefaultRateLimitPerSecond,
		RateLimitBurst:     constants.DefaultRateLimitBurst,
		ReadTimeout:        constants.DefaultHTTPReadTimeout,
		WriteTimeout:       constants.DefaultHTTPWriteTimeout,
		IdleTimeout:        constants.DefaultHTTPIdleTimeout,
		ShutdownTimeout:    constants.DefaultShutdownTimeout,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", constants.MinPort, constants.MaxPort, c.Port)
	}
	if c.RateLimitPerSecond < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	return nil
}

// Address returns the host:port listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
