// Package testutil provides shared helpers for package tests.
package testutil

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/medledger/indexer-go/storage"
)

// NewTestLogger creates a test logger that doesn't output to console
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// NewTestStore creates a temporary PebbleDB store cleaned up with the test
func NewTestStore(t *testing.T) storage.Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "indexer-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	store, err := storage.NewPebbleStore(storage.DefaultConfig(tmpDir))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
		os.RemoveAll(tmpDir)
	})

	return store
}

// Addr builds a deterministic test address from a single byte tag
func Addr(tag byte) common.Address {
	var addr common.Address
	addr[19] = tag
	return addr
}
