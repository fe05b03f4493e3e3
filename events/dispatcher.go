package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrStopped is returned when a log arrives after the dispatcher shut down.
var ErrStopped = errors.New("dispatcher stopped")

// HandlerFunc projects one decoded event into the store.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// DispatcherConfig holds dispatch tuning
type DispatcherConfig struct {
	// Workers is the number of projection workers
	Workers int
	// QueueSize is the capacity of the bounded work queue
	QueueSize int
}

// Dispatcher decodes incoming logs and drains them through a bounded queue
// into a supervised worker pool. The queue bound is the backpressure point:
// when all workers are busy and the queue is full, HandleLog blocks, which
// in turn stalls the subscription reader.
type Dispatcher struct {
	decoder  *Decoder
	handlers map[Kind]HandlerFunc
	metrics  *Metrics
	logger   *zap.Logger

	queue chan *Envelope
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewDispatcher wires the projector's handlers into a worker pool. It fails
// if any recognized event kind lacks a handler, so an unhandled kind is a
// construction error rather than a silent runtime drop.
func NewDispatcher(projector *Projector, cfg DispatcherConfig, metrics *Metrics, logger *zap.Logger) (*Dispatcher, error) {
	if projector == nil {
		return nil, fmt.Errorf("projector cannot be nil")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive")
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handlers := projector.Handlers()
	for _, kind := range AllKinds {
		if _, ok := handlers[kind]; !ok {
			return nil, fmt.Errorf("no handler for event kind %s", kind)
		}
	}

	d := &Dispatcher{
		decoder:  NewDecoder(),
		handlers: handlers,
		metrics:  metrics,
		logger:   logger,
		queue:    make(chan *Envelope, cfg.QueueSize),
		quit:     make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	return d, nil
}

// HandleLog decodes one raw log and enqueues it for projection. Unknown
// signatures and removed logs are dropped here; a full queue blocks until a
// worker frees a slot, the dispatcher stops, or the context is cancelled.
func (d *Dispatcher) HandleLog(ctx context.Context, log gethtypes.Log) error {
	if log.Removed {
		d.logger.Debug("skipping removed log",
			zap.String("tx", log.TxHash.Hex()),
			zap.Uint64("block", log.BlockNumber))
		return nil
	}

	env, err := d.decoder.Decode(log)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			if d.metrics != nil {
				d.metrics.RecordUnknown()
			}
			d.logger.Debug("ignoring unrecognized log", zap.Error(err))
			return nil
		}
		// A known signature that fails to unpack is a handler-class fault:
		// log with the transaction and drop the single event.
		d.logger.Error("failed to decode log",
			zap.String("tx", log.TxHash.Hex()),
			zap.Error(err))
		return nil
	}

	if d.metrics != nil {
		d.metrics.RecordDecoded(env.Kind)
	}

	select {
	case d.queue <- env:
		if d.metrics != nil {
			d.metrics.SetQueueDepth(len(d.queue))
		}
		return nil
	case <-d.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the worker pool down. Queued events are abandoned; there is no
// drain guarantee on shutdown.
func (d *Dispatcher) Stop() {
	d.once.Do(func() {
		close(d.quit)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			return
		case env := <-d.queue:
			if d.metrics != nil {
				d.metrics.SetQueueDepth(len(d.queue))
			}
			d.apply(env)
		}
	}
}

// apply runs one handler inside its failure boundary: a panic or error is
// logged with the originating transaction and the event is dropped.
func (d *Dispatcher) apply(env *Envelope) {
	defer func() {
		if r := recover(); r != nil {
			if d.metrics != nil {
				d.metrics.RecordPanic()
			}
			d.logger.Error("handler panic",
				zap.String("event", string(env.Kind)),
				zap.String("tx", env.Meta.TxHash.Hex()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	handler := d.handlers[env.Kind]

	start := time.Now()
	err := handler(context.Background(), env)
	if d.metrics != nil {
		d.metrics.ObserveApply(env.Kind, time.Since(start))
	}

	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.RecordApplied(env.Kind)
		}
	case errors.Is(err, errSkip):
		if d.metrics != nil {
			d.metrics.RecordSkipped(env.Kind)
		}
	default:
		if d.metrics != nil {
			d.metrics.RecordFailed(env.Kind)
		}
		d.logger.Error("handler failed, dropping event",
			zap.String("event", string(env.Kind)),
			zap.String("tx", env.Meta.TxHash.Hex()),
			zap.Error(err))
	}
}
