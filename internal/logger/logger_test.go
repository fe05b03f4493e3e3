package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		logger, err := New(&Config{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if logger == nil {
			t.Fatal("New() returned nil logger")
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(&Config{Level: "verbose"})
		if err == nil {
			t.Error("New() should fail with invalid level")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil)
		if err == nil {
			t.Error("New() should fail with nil config")
		}
	})

	t.Run("console format", func(t *testing.T) {
		logger, err := New(&Config{Level: "debug", Format: "console", Development: true})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if logger == nil {
			t.Fatal("New() returned nil logger")
		}
	})
}

func TestFromContext(t *testing.T) {
	t.Run("missing logger returns nop", func(t *testing.T) {
		logger := FromContext(context.Background())
		if logger == nil {
			t.Fatal("FromContext() returned nil")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := zap.NewExample()
		ctx := WithLogger(context.Background(), want)
		if got := FromContext(ctx); got != want {
			t.Error("FromContext() did not return the attached logger")
		}
	})

	t.Run("nil context returns nop", func(t *testing.T) {
		//nolint:staticcheck
		logger := FromContext(nil)
		if logger == nil {
			t.Fatal("FromContext(nil) returned nil")
		}
	})
}
