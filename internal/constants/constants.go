package constants

import "time"

// Chain Connection Constants
const (
	// DefaultReconnectBackoff is the fixed delay between subscription attempts
	DefaultReconnectBackoff = 5 * time.Second

	// DefaultReadTimeout is the default timeout for read-only chain calls
	DefaultReadTimeout = 30 * time.Second

	// DefaultReadRate is the default rate limit for read-only chain calls
	// (calls per second)
	DefaultReadRate = 50

	// DefaultReadBurst is the default burst size for read-only chain calls
	DefaultReadBurst = 100
)

// Dispatch Constants
const (
	// DefaultNumWorkers is the default number of projection workers
	DefaultNumWorkers = 4

	// MinWorkers is the minimum number of workers
	MinWorkers = 1

	// MaxWorkers is the maximum number of workers
	MaxWorkers = 64

	// DefaultQueueSize is the default capacity of the bounded work queue
	DefaultQueueSize = 1024
)

// Storage Constants
const (
	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 128 // MB

	// DefaultMaxOpenFiles is the default maximum number of open files for PebbleDB
	DefaultMaxOpenFiles = 1000

	// DefaultWriteBuffer is the default write buffer size in MB for PebbleDB
	DefaultWriteBuffer = 64 // MB

	// DefaultCompactionConcurrency is the default number of concurrent compactions
	DefaultCompactionConcurrency = 4
)

// Ops Server Constants
const (
	// DefaultOpsHost is the default ops server host
	DefaultOpsHost = "localhost"

	// DefaultOpsPort is the default ops server port
	DefaultOpsPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultHTTPReadTimeout is the default HTTP read timeout
	DefaultHTTPReadTimeout = 15 * time.Second

	// DefaultHTTPWriteTimeout is the default HTTP write timeout
	DefaultHTTPWriteTimeout = 15 * time.Second

	// DefaultHTTPIdleTimeout is the default HTTP idle timeout
	DefaultHTTPIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultRateLimitPerSecond is the default ops rate limit (requests per second)
	DefaultRateLimitPerSecond = 100

	// DefaultRateLimitBurst is the default ops rate limit burst size
	DefaultRateLimitBurst = 200
)

// Notify Constants
const (
	// DefaultUpdateBufferSize is the default per-subscriber update buffer size
	DefaultUpdateBufferSize = 100
)
