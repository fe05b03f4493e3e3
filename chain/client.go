// Package chain owns every connection to the chain: the resilient log
// subscription feeding the dispatcher, and the rate-limited read client used
// synchronously inside handlers.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medledger/indexer-go/events"
)

// ReadClient exposes synchronous read access to registry contract state. It
// holds its own connection, so subscription reconnects never stall a read.
type ReadClient struct {
	ethClient *ethclient.Client
	contract  common.Address
	abi       abi.ABI
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

// ReadConfig holds read client configuration
type ReadConfig struct {
	// Endpoint is the HTTP(S) JSON-RPC endpoint
	Endpoint string
	// Contract is the registry contract address
	Contract common.Address
	// Timeout bounds each call
	Timeout time.Duration
	// Rate limits calls per second; Burst is the limiter burst size
	Rate   int
	Burst  int
	Logger *zap.Logger
}

// NewReadClient connects to the RPC endpoint and verifies the connection
func NewReadClient(ctx context.Context, cfg *ReadConfig) (*ReadClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.Rate
	if limit <= 0 {
		limit = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = limit
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ethClient, err := ethclient.DialContext(dialCtx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	client := &ReadClient{
		ethClient: ethClient,
		contract:  cfg.Contract,
		abi:       events.RegistryABI(),
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		timeout:   timeout,
		logger:    logger,
	}

	if err := client.Ping(dialCtx); err != nil {
		ethClient.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	logger.Info("connected to chain RPC",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("contract", cfg.Contract.Hex()))

	return client, nil
}

// call applies the rate limit and per-call timeout around fn
func (c *ReadClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(callCtx)
}

// Ping verifies the connection to the RPC endpoint
func (c *ReadClient) Ping(ctx context.Context) error {
	return c.call(ctx, func(ctx context.Context) error {
		_, err := c.ethClient.ChainID(ctx)
		return err
	})
}

// ChainID returns the chain id
func (c *ReadClient) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		chainID, err = c.ethClient.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// GetPublicKey reads a user's current on-chain encryption key
func (c *ReadClient) GetPublicKey(ctx context.Context, user common.Address) (string, error) {
	input, err := c.abi.Pack("getPublicKey", user)
	if err != nil {
		return "", fmt.Errorf("failed to pack getPublicKey call: %w", err)
	}

	var output []byte
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		output, err = c.ethClient.CallContract(ctx, ethereum.CallMsg{
			To:   &c.contract,
			Data: input,
		}, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("getPublicKey call failed for %s: %w", user.Hex(), err)
	}

	results, err := c.abi.Unpack("getPublicKey", output)
	if err != nil {
		return "", fmt.Errorf("failed to unpack getPublicKey result: %w", err)
	}
	if len(results) != 1 {
		return "", fmt.Errorf("unexpected getPublicKey result arity %d", len(results))
	}
	key, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected getPublicKey result type %T", results[0])
	}
	return key, nil
}

// BlockTime resolves a block hash to its timestamp
func (c *ReadClient) BlockTime(ctx context.Context, blockHash common.Hash) (time.Time, error) {
	var ts uint64
	err := c.call(ctx, func(ctx context.Context) error {
		header, err := c.ethClient.HeaderByHash(ctx, blockHash)
		if err != nil {
			return err
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get header %s: %w", blockHash.Hex(), err)
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}

// Close closes the client connection
func (c *ReadClient) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}
