// Package supervisor coordinates process lifetime: it waits for either a
// shutdown signal or the first fatal component error, whichever comes first.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Supervisor collects fatal errors from components. The first fatal error
// wins; later ones are logged and dropped.
type Supervisor struct {
	logger *zap.Logger

	once  sync.Once
	fatal chan error
}

// New creates a supervisor
func New(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		logger: logger,
		fatal:  make(chan error, 1),
	}
}

// Fatal reports an unrecoverable component error. Safe to call from any
// goroutine; only the first call is delivered.
func (s *Supervisor) Fatal(err error) {
	if err == nil {
		return
	}
	delivered := false
	s.once.Do(func() {
		s.fatal <- err
		delivered = true
	})
	if !delivered {
		s.logger.Error("fatal error after shutdown started", zap.Error(err))
	}
}

// Wait blocks until a shutdown signal arrives, the context is cancelled, or
// a component reports a fatal error. It returns nil for an orderly shutdown
// and the fatal error otherwise.
func (s *Supervisor) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		return nil
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return nil
	case err := <-s.fatal:
		s.logger.Error("fatal component error", zap.Error(err))
		return err
	}
}
