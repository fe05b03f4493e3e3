package storage

import (
	"context"
	"errors"

	"github.com/medledger/indexer-go/types"
)

// Common errors
var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when a stored value cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("store closed")

	// ErrReadOnly is returned when attempting to write to a read-only store
	ErrReadOnly = errors.New("store is read-only")
)

// Reader provides read access to projected documents.
type Reader interface {
	// GetRegistrationRequest returns a registration request by id
	GetRegistrationRequest(ctx context.Context, requestID uint64) (*types.RegistrationRequest, error)

	// GetHospital returns a hospital by id
	GetHospital(ctx context.Context, hospitalID uint64) (*types.Hospital, error)

	// GetUser returns a user by lower-cased address
	GetUser(ctx context.Context, address string) (*types.User, error)

	// GetRecord returns a record by id
	GetRecord(ctx context.Context, recordID uint64) (*types.Record, error)

	// GetAccessRequest returns an access request by id
	GetAccessRequest(ctx context.Context, requestID uint64) (*types.AccessRequest, error)

	// GetAccessGrant returns the grant for a (record, professional) pair
	GetAccessGrant(ctx context.Context, recordID uint64, professional string) (*types.AccessGrant, error)

	// ListUsersByHospital returns all users associated with a hospital
	ListUsersByHospital(ctx context.Context, hospitalID uint64) ([]*types.User, error)

	// ListAccessGrantsByRecord returns all grants for a record
	ListAccessGrantsByRecord(ctx context.Context, recordID uint64) ([]*types.AccessGrant, error)
}

// Writer provides write access to projected documents. All writes are
// upserts keyed by the entity's business identifier.
type Writer interface {
	// PutRegistrationRequest upserts a registration request
	PutRegistrationRequest(ctx context.Context, req *types.RegistrationRequest) error

	// PutHospital upserts a hospital
	PutHospital(ctx context.Context, hospital *types.Hospital) error

	// PutUser upserts a user
	PutUser(ctx context.Context, user *types.User) error

	// UpdateUser applies fn to the user document for address and persists
	// the result. The read-modify-write cycle is serialized by the store,
	// so concurrent updates to the same address never lose a mutation.
	// When no document exists, fn receives a fresh one carrying only the
	// lower-cased address and found is false. An error from fn aborts the
	// update without writing.
	UpdateUser(ctx context.Context, address string, fn func(user *types.User, found bool) error) error

	// PutRecord upserts a record
	PutRecord(ctx context.Context, record *types.Record) error

	// PutAccessRequest upserts an access request
	PutAccessRequest(ctx context.Context, req *types.AccessRequest) error

	// PutAccessGrant upserts a grant; the (record, professional) pair is
	// the identity, a second grant for the same pair overwrites the first
	PutAccessGrant(ctx context.Context, grant *types.AccessGrant) error

	// RevokeUsersByHospital marks every user of a hospital revoked and
	// unverified in a single atomic batch. Returns the number of users
	// updated.
	RevokeUsersByHospital(ctx context.Context, hospitalID uint64) (int, error)

	// DeleteAccessGrants removes the grants a professional holds on the
	// given records in a single atomic batch. Missing grants are skipped.
	// Returns the number of grants deleted.
	DeleteAccessGrants(ctx context.Context, professional string, recordIDs []uint64) (int, error)
}

// Store combines Reader and Writer.
type Store interface {
	Reader
	Writer

	// Close closes the store and releases resources
	Close() error
}

// Config holds PebbleDB tuning options.
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 128)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 1000)
	MaxOpenFiles int

	// WriteBuffer size in MB (default: 64)
	WriteBuffer int

	// DisableWAL disables write-ahead log (not recommended)
	DisableWAL bool

	// ReadOnly opens the database in read-only mode
	ReadOnly bool

	// CompactionConcurrency for background compaction (default: 1)
	CompactionConcurrency int
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:                  path,
		Cache:                 128,
		MaxOpenFiles:          1000,
		WriteBuffer:           64,
		DisableWAL:            false,
		ReadOnly:              false,
		CompactionConcurrency: 1,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	if c.WriteBuffer < 0 {
		return errors.New("write buffer size cannot be negative")
	}
	if c.CompactionConcurrency < 1 {
		return errors.New("compaction concurrency must be at least 1")
	}
	return nil
}
