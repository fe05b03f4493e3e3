package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWait_FatalError(t *testing.T) {
	s := New(zap.NewNop())
	want := errors.New("store corrupted")

	go s.Fatal(want)

	err := s.Wait(context.Background())
	if !errors.Is(err, want) {
		t.Errorf("Wait() error = %v, want %v", err, want)
	}
}

func TestWait_ContextCancel(t *testing.T) {
	s := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if err := s.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v, want nil on cancel", err)
	}
}

func TestFatal_FirstErrorWins(t *testing.T) {
	s := New(zap.NewNop())
	first := errors.New("first")
	second := errors.New("second")

	s.Fatal(first)
	s.Fatal(second) // dropped, must not block

	err := s.Wait(context.Background())
	if !errors.Is(err, first) {
		t.Errorf("Wait() error = %v, want first error", err)
	}
}

func TestFatal_NilIgnored(t *testing.T) {
	s := New(zap.NewNop())
	s.Fatal(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v, nil Fatal should not trip shutdown", err)
	}
}
