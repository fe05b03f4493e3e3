package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/medledger/indexer-go/notify"
	"github.com/medledger/indexer-go/storage"
	"github.com/medledger/indexer-go/types"
)

// errSkip marks an event dropped over a missing precondition rather than a
// failure. Skips are logged where they happen; the dispatcher only counts
// them.
var errSkip = errors.New("event skipped")

// ChainReader is the synchronous read surface handlers need. It is
// independent of the subscription so reconnect churn never stalls a handler.
type ChainReader interface {
	// GetPublicKey reads a user's current on-chain encryption key
	GetPublicKey(ctx context.Context, user common.Address) (string, error)

	// BlockTime resolves a block hash to its timestamp
	BlockTime(ctx context.Context, blockHash common.Hash) (time.Time, error)
}

// Notifier receives one update per applied store mutation.
type Notifier interface {
	Publish(update notify.Update)
}

// Projector owns the projection handlers: one per event kind, each an
// idempotent read-modify-write against the store.
type Projector struct {
	store  storage.Store
	chain  ChainReader
	notify Notifier
	logger *zap.Logger
}

// NewProjector creates a projector. The notifier may be nil.
func NewProjector(store storage.Store, chain ChainReader, notifier Notifier, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		store:  store,
		chain:  chain,
		notify: notifier,
		logger: logger,
	}
}

// Handlers returns the dispatch table. Every Kind in AllKinds has an entry.
func (p *Projector) Handlers() map[Kind]HandlerFunc {
	return map[Kind]HandlerFunc{
		KindRegistrationRequested:       p.applyRegistrationRequested,
		KindHospitalVerified:            p.applyHospitalVerified,
		KindHospitalRevoked:             p.applyHospitalRevoked,
		KindRoleAssigned:                p.applyRoleAssigned,
		KindRoleRevoked:                 p.applyRoleRevoked,
		KindPublicKeySaved:              p.applyPublicKeySaved,
		KindRecordAdded:                 p.applyRecordAdded,
		KindProfessionalAccessRequested: p.applyProfessionalAccessRequested,
		KindAccessGranted:               p.applyAccessGranted,
		KindAccessRevoked:               p.applyAccessRevoked,
	}
}

func (p *Projector) published(kind Kind, entity, key string, meta Meta) {
	if p.notify == nil {
		return
	}
	p.notify.Publish(notify.Update{
		Event:  string(kind),
		Entity: entity,
		Key:    key,
		TxHash: meta.TxHash.Hex(),
	})
}

// User mutations go through storage's UpdateUser so the read-modify-write
// cycle is serialized by the store; two in-flight events for the same
// address cannot clobber each other's fields. A user first seen by any
// event defaults to the patient role.

func (p *Projector) applyRegistrationRequested(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*RegistrationRequested)

	req := &types.RegistrationRequest{
		RequestID:        e.RequestID.Uint64(),
		HospitalName:     e.HospitalName,
		RequesterAddress: types.NormalizeAddress(e.Requester),
		Status:           types.RegistrationPending,
	}
	if err := p.store.PutRegistrationRequest(ctx, req); err != nil {
		return err
	}

	p.logger.Info("registration requested",
		zap.Uint64("requestId", req.RequestID),
		zap.String("hospital", req.HospitalName),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "registration_requests", fmt.Sprint(req.RequestID), env.Meta)
	return nil
}

func (p *Projector) applyHospitalVerified(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*HospitalVerified)
	hospitalID := e.HospitalID.Uint64()

	req, err := p.store.GetRegistrationRequest(ctx, hospitalID)
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.Warn("hospital verified without a matching registration request",
			zap.Uint64("hospitalId", hospitalID),
			zap.String("tx", env.Meta.TxHash.Hex()))
		return fmt.Errorf("%w: no registration request %d", errSkip, hospitalID)
	}
	if err != nil {
		return err
	}

	// Re-delivery after approval converges on the same state; anything else
	// means verification arrived out of order and is dropped.
	if req.Status != types.RegistrationVerifying && req.Status != types.RegistrationApproved {
		p.logger.Warn("hospital verified for a request not under verification",
			zap.Uint64("hospitalId", hospitalID),
			zap.String("status", string(req.Status)),
			zap.String("tx", env.Meta.TxHash.Hex()))
		return fmt.Errorf("%w: request %d has status %s", errSkip, hospitalID, req.Status)
	}

	admin := types.NormalizeAddress(e.Admin)

	req.Status = types.RegistrationApproved
	if err := p.store.PutRegistrationRequest(ctx, req); err != nil {
		return err
	}

	hospital := &types.Hospital{
		HospitalID:   hospitalID,
		Name:         req.HospitalName,
		AdminAddress: admin,
		IsVerified:   true,
		Status:       types.HospitalActive,
	}
	if err := p.store.PutHospital(ctx, hospital); err != nil {
		return err
	}

	err = p.store.UpdateUser(ctx, admin, func(user *types.User, found bool) error {
		user.Role = types.RoleHospitalAdmin
		user.HospitalID = &hospitalID
		user.ProfessionalStatus = types.ProfessionalActive
		user.IsVerified = true
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("hospital verified",
		zap.Uint64("hospitalId", hospitalID),
		zap.String("admin", admin),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "hospitals", fmt.Sprint(hospitalID), env.Meta)
	return nil
}

func (p *Projector) applyHospitalRevoked(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*HospitalRevoked)
	hospitalID := e.HospitalID.Uint64()

	hospital, err := p.store.GetHospital(ctx, hospitalID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p.logger.Warn("revocation for unknown hospital, cascading anyway",
			zap.Uint64("hospitalId", hospitalID),
			zap.String("tx", env.Meta.TxHash.Hex()))
	case err != nil:
		return err
	default:
		hospital.Status = types.HospitalRevoked
		hospital.IsVerified = false
		if err := p.store.PutHospital(ctx, hospital); err != nil {
			return err
		}
	}

	// The cascade runs even when the hospital document is missing so user
	// state cannot outlive a revocation.
	revoked, err := p.store.RevokeUsersByHospital(ctx, hospitalID)
	if err != nil {
		return err
	}

	p.logger.Info("hospital revoked",
		zap.Uint64("hospitalId", hospitalID),
		zap.Int("usersRevoked", revoked),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "hospitals", fmt.Sprint(hospitalID), env.Meta)
	return nil
}

func (p *Projector) applyRoleAssigned(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*RoleAssigned)
	address := types.NormalizeAddress(e.User)
	hospitalID := e.HospitalID.Uint64()

	role := types.RoleFromCode(e.Role)
	if role == types.RoleUnassigned {
		p.logger.Warn("unknown role code, degrading to sentinel",
			zap.Uint8("code", e.Role),
			zap.String("user", address),
			zap.String("tx", env.Meta.TxHash.Hex()))
	}

	err := p.store.UpdateUser(ctx, address, func(user *types.User, found bool) error {
		user.Role = role
		user.HospitalID = &hospitalID
		user.ProfessionalStatus = types.ProfessionalActive
		user.IsVerified = true
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("role assigned",
		zap.String("user", address),
		zap.String("role", string(role)),
		zap.Uint64("hospitalId", hospitalID),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "users", address, env.Meta)
	return nil
}

func (p *Projector) applyRoleRevoked(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*RoleRevoked)
	address := types.NormalizeAddress(e.User)

	err := p.store.UpdateUser(ctx, address, func(user *types.User, found bool) error {
		user.Role = types.RolePatient
		user.HospitalID = nil
		user.ProfessionalStatus = types.ProfessionalRevoked
		user.IsVerified = false
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("role revoked",
		zap.String("user", address),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "users", address, env.Meta)
	return nil
}

func (p *Projector) applyPublicKeySaved(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*PublicKeySaved)
	address := types.NormalizeAddress(e.User)

	key, err := p.chain.GetPublicKey(ctx, e.User)
	if err != nil {
		return fmt.Errorf("failed to read public key for %s: %w", address, err)
	}
	if key == "" {
		p.logger.Warn("public key saved event but on-chain key is empty",
			zap.String("user", address),
			zap.String("tx", env.Meta.TxHash.Hex()))
		return fmt.Errorf("%w: empty public key for %s", errSkip, address)
	}

	err = p.store.UpdateUser(ctx, address, func(user *types.User, found bool) error {
		if !found {
			user.Role = types.RolePatient
		}
		user.PublicKey = key
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("public key stored",
		zap.String("user", address),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "users", address, env.Meta)
	return nil
}

func (p *Projector) applyRecordAdded(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*RecordAdded)

	record := &types.Record{
		RecordID:   e.RecordID.Uint64(),
		Owner:      types.NormalizeAddress(e.Owner),
		Title:      e.Title,
		IPFSHash:   e.IPFSHash,
		Category:   e.Category,
		IsVerified: e.IsVerified,
		UploadedBy: types.NormalizeAddress(e.VerifiedBy),
		Timestamp:  time.Unix(e.Timestamp.Int64(), 0).UTC(),
	}
	if err := p.store.PutRecord(ctx, record); err != nil {
		return err
	}

	p.logger.Info("record added",
		zap.Uint64("recordId", record.RecordID),
		zap.String("owner", record.Owner),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "records", fmt.Sprint(record.RecordID), env.Meta)
	return nil
}

func (p *Projector) applyProfessionalAccessRequested(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*ProfessionalAccessRequested)

	recordIDs := make([]uint64, 0, len(e.RecordIDs))
	for _, id := range e.RecordIDs {
		recordIDs = append(recordIDs, id.Uint64())
	}

	req := &types.AccessRequest{
		RequestID:           e.RequestID.Uint64(),
		RecordIDs:           recordIDs,
		ProfessionalAddress: types.NormalizeAddress(e.Professional),
		PatientAddress:      types.NormalizeAddress(e.Patient),
		Status:              types.AccessRequestPending,
	}
	if err := p.store.PutAccessRequest(ctx, req); err != nil {
		return err
	}

	p.logger.Info("access requested",
		zap.Uint64("requestId", req.RequestID),
		zap.Int("records", len(recordIDs)),
		zap.String("professional", req.ProfessionalAddress),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "access_requests", fmt.Sprint(req.RequestID), env.Meta)
	return nil
}

func (p *Projector) applyAccessGranted(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*AccessGranted)

	createdAt, err := p.chain.BlockTime(ctx, env.Meta.BlockHash)
	if err != nil {
		return fmt.Errorf("failed to resolve block %s: %w", env.Meta.BlockHash.Hex(), err)
	}

	grant := &types.AccessGrant{
		RecordID:            e.RecordID.Uint64(),
		ProfessionalAddress: types.NormalizeAddress(e.Grantee),
		PatientAddress:      types.NormalizeAddress(e.Owner),
		ExpirationTimestamp: time.Unix(e.Expiration.Int64(), 0).UTC(),
		RewrappedKey:        common.Bytes2Hex(e.EncryptedDek),
		CreatedAt:           createdAt,
	}
	if err := p.store.PutAccessGrant(ctx, grant); err != nil {
		return err
	}

	p.logger.Info("access granted",
		zap.Uint64("recordId", grant.RecordID),
		zap.String("grantee", grant.ProfessionalAddress),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "access_grants",
		fmt.Sprintf("%d/%s", grant.RecordID, grant.ProfessionalAddress), env.Meta)
	return nil
}

func (p *Projector) applyAccessRevoked(ctx context.Context, env *Envelope) error {
	e := env.Payload.(*AccessRevoked)
	professional := types.NormalizeAddress(e.Professional)

	recordIDs := make([]uint64, 0, len(e.RecordIDs))
	for _, id := range e.RecordIDs {
		recordIDs = append(recordIDs, id.Uint64())
	}

	deleted, err := p.store.DeleteAccessGrants(ctx, professional, recordIDs)
	if err != nil {
		return err
	}

	p.logger.Info("access revoked",
		zap.String("professional", professional),
		zap.Int("requested", len(recordIDs)),
		zap.Int("deleted", deleted),
		zap.String("tx", env.Meta.TxHash.Hex()))
	p.published(env.Kind, "access_grants", professional, env.Meta)
	return nil
}
