package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/medledger/indexer-go/types"
)

// PebbleStore implements Store using PebbleDB
type PebbleStore struct {
	db     *pebble.DB
	config *Config
	logger *zap.Logger
	closed atomic.Bool

	// usersMu serializes read-modify-write cycles on user documents
	// (UpdateUser and the revocation cascade). Callers hold no locks.
	usersMu sync.Mutex
}

// NewPebbleStore opens a PebbleDB-backed document store
func NewPebbleStore(cfg *Config) (*PebbleStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:                    pebble.NewCache(int64(cfg.Cache) << 20), // Convert MB to bytes
		MaxOpenFiles:             cfg.MaxOpenFiles,
		MemTableSize:             uint64(cfg.WriteBuffer) << 20,
		DisableWAL:               cfg.DisableWAL,
		MaxConcurrentCompactions: func() int { return cfg.CompactionConcurrency },
		ErrorIfExists:            false,
		ErrorIfNotExists:         false,
	}

	if cfg.ReadOnly {
		opts.ReadOnly = true
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleStore{
		db:     db,
		config: cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the store
func (s *PebbleStore) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

func (s *PebbleStore) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *PebbleStore) ensureNotReadOnly() error {
	if s.config.ReadOnly {
		return ErrReadOnly
	}
	return nil
}

// Close closes the store and releases resources
func (s *PebbleStore) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PebbleStore) get(key []byte, v any) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}

	value, closer, err := s.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	return decodeDoc(value, v)
}

func (s *PebbleStore) put(key []byte, v any) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}

	encoded, err := encodeDoc(v)
	if err != nil {
		return err
	}

	return s.db.Set(key, encoded, pebble.Sync)
}

// GetRegistrationRequest returns a registration request by id
func (s *PebbleStore) GetRegistrationRequest(ctx context.Context, requestID uint64) (*types.RegistrationRequest, error) {
	var req types.RegistrationRequest
	if err := s.get(RegistrationRequestKey(requestID), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// PutRegistrationRequest upserts a registration request
func (s *PebbleStore) PutRegistrationRequest(ctx context.Context, req *types.RegistrationRequest) error {
	if req == nil {
		return fmt.Errorf("registration request cannot be nil")
	}
	return s.put(RegistrationRequestKey(req.RequestID), req)
}

// GetHospital returns a hospital by id
func (s *PebbleStore) GetHospital(ctx context.Context, hospitalID uint64) (*types.Hospital, error) {
	var hospital types.Hospital
	if err := s.get(HospitalKey(hospitalID), &hospital); err != nil {
		return nil, err
	}
	return &hospital, nil
}

// PutHospital upserts a hospital
func (s *PebbleStore) PutHospital(ctx context.Context, hospital *types.Hospital) error {
	if hospital == nil {
		return fmt.Errorf("hospital cannot be nil")
	}
	return s.put(HospitalKey(hospital.HospitalID), hospital)
}

// GetUser returns a user by lower-cased address
func (s *PebbleStore) GetUser(ctx context.Context, address string) (*types.User, error) {
	var user types.User
	if err := s.get(UserKey(address), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// PutUser upserts a user
func (s *PebbleStore) PutUser(ctx context.Context, user *types.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	user.Address = strings.ToLower(user.Address)
	return s.put(UserKey(user.Address), user)
}

// UpdateUser applies fn to the stored user document and persists the result.
// The whole read-modify-write cycle runs under the store's user lock, so
// concurrent updates to the same address never lose a mutation. When no
// document exists, fn receives a fresh one carrying only the lower-cased
// address and found is false. An error from fn aborts without writing.
func (s *PebbleStore) UpdateUser(ctx context.Context, address string, fn func(user *types.User, found bool) error) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("update function cannot be nil")
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	address = strings.ToLower(address)

	found := true
	user, err := s.GetUser(ctx, address)
	if errors.Is(err, ErrNotFound) {
		user = &types.User{Address: address}
		found = false
	} else if err != nil {
		return err
	}

	if err := fn(user, found); err != nil {
		return err
	}

	return s.PutUser(ctx, user)
}

// GetRecord returns a record by id
func (s *PebbleStore) GetRecord(ctx context.Context, recordID uint64) (*types.Record, error) {
	var record types.Record
	if err := s.get(RecordKey(recordID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// PutRecord upserts a record
func (s *PebbleStore) PutRecord(ctx context.Context, record *types.Record) error {
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	return s.put(RecordKey(record.RecordID), record)
}

// GetAccessRequest returns an access request by id
func (s *PebbleStore) GetAccessRequest(ctx context.Context, requestID uint64) (*types.AccessRequest, error) {
	var req types.AccessRequest
	if err := s.get(AccessRequestKey(requestID), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// PutAccessRequest upserts an access request
func (s *PebbleStore) PutAccessRequest(ctx context.Context, req *types.AccessRequest) error {
	if req == nil {
		return fmt.Errorf("access request cannot be nil")
	}
	return s.put(AccessRequestKey(req.RequestID), req)
}

// GetAccessGrant returns the grant for a (record, professional) pair
func (s *PebbleStore) GetAccessGrant(ctx context.Context, recordID uint64, professional string) (*types.AccessGrant, error) {
	var grant types.AccessGrant
	if err := s.get(AccessGrantKey(recordID, professional), &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// PutAccessGrant upserts a grant for a (record, professional) pair
func (s *PebbleStore) PutAccessGrant(ctx context.Context, grant *types.AccessGrant) error {
	if grant == nil {
		return fmt.Errorf("access grant cannot be nil")
	}
	grant.ProfessionalAddress = strings.ToLower(grant.ProfessionalAddress)
	return s.put(AccessGrantKey(grant.RecordID, grant.ProfessionalAddress), grant)
}

// ListUsersByHospital returns all users associated with a hospital
func (s *PebbleStore) ListUsersByHospital(ctx context.Context, hospitalID uint64) ([]*types.User, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := UserKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var users []*types.User
	for iter.First(); iter.Valid(); iter.Next() {
		var user types.User
		if err := decodeDoc(iter.Value(), &user); err != nil {
			return nil, err
		}
		if user.HospitalID == nil || *user.HospitalID != hospitalID {
			continue
		}
		users = append(users, &user)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return users, nil
}

// RevokeUsersByHospital marks every user of a hospital revoked in one batch
func (s *PebbleStore) RevokeUsersByHospital(ctx context.Context, hospitalID uint64) (int, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return 0, err
	}

	// The cascade is a read-modify-write over many user documents; it takes
	// the same lock as UpdateUser so a concurrent single-user update cannot
	// interleave with it.
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	users, err := s.ListUsersByHospital(ctx, hospitalID)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, user := range users {
		user.ProfessionalStatus = types.ProfessionalRevoked
		user.IsVerified = false

		encoded, err := encodeDoc(user)
		if err != nil {
			return 0, err
		}
		if err := batch.Set(UserKey(user.Address), encoded, nil); err != nil {
			return 0, fmt.Errorf("failed to batch user update: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit user revocations: %w", err)
	}

	return len(users), nil
}

// ListAccessGrantsByRecord returns all grants for a record
func (s *PebbleStore) ListAccessGrantsByRecord(ctx context.Context, recordID uint64) ([]*types.AccessGrant, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := AccessGrantKeyPrefix(recordID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var grants []*types.AccessGrant
	for iter.First(); iter.Valid(); iter.Next() {
		var grant types.AccessGrant
		if err := decodeDoc(iter.Value(), &grant); err != nil {
			return nil, err
		}
		grants = append(grants, &grant)
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}

	return grants, nil
}

// DeleteAccessGrants removes a professional's grants on the given records in
// one batch. Records with no matching grant are skipped.
func (s *PebbleStore) DeleteAccessGrants(ctx context.Context, professional string, recordIDs []uint64) (int, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}
	if err := s.ensureNotReadOnly(); err != nil {
		return 0, err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	deleted := 0
	for _, recordID := range recordIDs {
		key := AccessGrantKey(recordID, professional)

		_, closer, err := s.db.Get(key)
		if err != nil {
			if err == pebble.ErrNotFound {
				continue
			}
			return 0, fmt.Errorf("failed to check grant: %w", err)
		}
		closer.Close()

		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to batch grant delete: %w", err)
		}
		deleted++
	}

	if deleted == 0 {
		return 0, nil
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit grant deletions: %w", err)
	}

	return deleted, nil
}
