package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// State describes the subscription lifecycle
type State int32

const (
	// StateDisconnected means no live connection exists
	StateDisconnected State = iota
	// StateConnecting means a dial or subscribe attempt is in flight
	StateConnecting
	// StateSubscribed means logs are flowing
	StateSubscribed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// LogSubscriber is the subscription surface of a websocket client
type LogSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- gethtypes.Log) (ethereum.Subscription, error)
	Close()
}

// Dialer establishes a fresh websocket connection. Each reconnection gets a
// brand new subscriber.
type Dialer interface {
	DialContext(ctx context.Context) (LogSubscriber, error)
}

// LogHandler consumes raw contract logs in delivery order
type LogHandler interface {
	HandleLog(ctx context.Context, log gethtypes.Log) error
}

// WSDialer dials a websocket JSON-RPC endpoint
type WSDialer struct {
	Endpoint string
}

// DialContext connects to the websocket endpoint
func (d *WSDialer) DialContext(ctx context.Context) (LogSubscriber, error) {
	client, err := ethclient.DialContext(ctx, d.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket endpoint: %w", err)
	}
	return client, nil
}

// SubscriptionConfig holds connection manager configuration
type SubscriptionConfig struct {
	// Contract is the registry address whose logs are subscribed
	Contract common.Address
	// ReconnectBackoff is the fixed delay between attempts
	ReconnectBackoff time.Duration
	// LogBuffer is the capacity of the raw log channel
	LogBuffer int
}

// Validate checks the configuration
func (c *SubscriptionConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.Contract == (common.Address{}) {
		return fmt.Errorf("contract address cannot be zero")
	}
	if c.ReconnectBackoff <= 0 {
		return fmt.Errorf("reconnect backoff must be positive, got %v", c.ReconnectBackoff)
	}
	return nil
}

// ConnectionManager maintains a persistent log subscription to the registry
// contract. Any failure tears down the connection and the manager retries
// with a fixed backoff until stopped. Logs are handed to the handler in the
// order the node delivers them.
type ConnectionManager struct {
	dialer  Dialer
	handler LogHandler
	config  *SubscriptionConfig
	metrics *Metrics
	logger  *zap.Logger

	state    atomic.Int32
	attempts atomic.Uint64

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewConnectionManager creates a connection manager
func NewConnectionManager(dialer Dialer, handler LogHandler, config *SubscriptionConfig, metrics *Metrics, logger *zap.Logger) (*ConnectionManager, error) {
	if dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConnectionManager{
		dialer:  dialer,
		handler: handler,
		config:  config,
		metrics: metrics,
		logger:  logger.Named("subscription"),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// State returns the current connection state
func (m *ConnectionManager) State() State {
	return State(m.state.Load())
}

func (m *ConnectionManager) setState(s State) {
	m.state.Store(int32(s))
	if m.metrics != nil {
		m.metrics.State.Set(float64(s))
	}
}

// Run drives the subscription until the context is cancelled or Stop is
// called. It never returns early on connection failures.
func (m *ConnectionManager) Run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateDisconnected)

	for {
		if m.stopped(ctx) {
			return
		}

		attempt := m.attempts.Add(1)
		reconnect := attempt > 1

		m.setState(StateConnecting)
		if reconnect {
			m.logger.Info("reconnecting",
				zap.Uint64("attempt", attempt),
				zap.Duration("backoff", m.config.ReconnectBackoff))
		} else {
			m.logger.Info("connecting",
				zap.String("contract", m.config.Contract.Hex()))
		}

		client, err := m.dialer.DialContext(ctx)
		if err != nil {
			m.connectFailed("dial failed", err)
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		bufSize := m.config.LogBuffer
		if bufSize <= 0 {
			bufSize = 256
		}
		logs := make(chan gethtypes.Log, bufSize)
		sub, err := client.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
			Addresses: []common.Address{m.config.Contract},
		}, logs)
		if err != nil {
			client.Close()
			m.connectFailed("subscribe failed", err)
			if !m.sleep(ctx) {
				return
			}
			continue
		}

		m.setState(StateSubscribed)
		m.logger.Info("subscribed to contract logs",
			zap.String("contract", m.config.Contract.Hex()),
			zap.Bool("reconnect", reconnect))
		if reconnect && m.metrics != nil {
			m.metrics.ReconnectsTotal.Inc()
		}

		stopping := m.consume(ctx, sub, logs)

		sub.Unsubscribe()
		client.Close()
		m.setState(StateDisconnected)

		if stopping {
			return
		}
		if !m.sleep(ctx) {
			return
		}
	}
}

// consume delivers logs until the subscription fails or the manager stops.
// It reports whether the manager is shutting down.
func (m *ConnectionManager) consume(ctx context.Context, sub ethereum.Subscription, logs <-chan gethtypes.Log) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case <-m.quit:
			return true
		case err := <-sub.Err():
			m.logger.Warn("subscription dropped", zap.Error(err))
			return false
		case lg := <-logs:
			if m.metrics != nil {
				m.metrics.LogsReceivedTotal.Inc()
			}
			if err := m.handler.HandleLog(ctx, lg); err != nil {
				m.logger.Error("log handler failed",
					zap.String("tx_hash", lg.TxHash.Hex()),
					zap.Uint64("block_number", lg.BlockNumber),
					zap.Error(err))
			}
		}
	}
}

func (m *ConnectionManager) connectFailed(msg string, err error) {
	m.setState(StateDisconnected)
	if m.metrics != nil {
		m.metrics.ConnectFailuresTotal.Inc()
	}
	m.logger.Error(msg,
		zap.Error(err),
		zap.Duration("retry_in", m.config.ReconnectBackoff))
}

// sleep waits one backoff interval. It reports false when the manager should
// stop instead of retrying.
func (m *ConnectionManager) sleep(ctx context.Context) bool {
	timer := time.NewTimer(m.config.ReconnectBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-m.quit:
		return false
	case <-timer.C:
		return true
	}
}

func (m *ConnectionManager) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-m.quit:
		return true
	default:
		return false
	}
}

// Stop shuts the manager down and waits for Run to return. Safe to call more
// than once.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
	})
	<-m.done
}
