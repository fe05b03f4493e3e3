package events

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/medledger/indexer-go/internal/testutil"
	"github.com/medledger/indexer-go/notify"
	"github.com/medledger/indexer-go/storage"
	"github.com/medledger/indexer-go/types"
)

type fakeChain struct {
	keys      map[common.Address]string
	keyErr    error
	blockTime time.Time
	blockErr  error
}

func (c *fakeChain) GetPublicKey(ctx context.Context, user common.Address) (string, error) {
	if c.keyErr != nil {
		return "", c.keyErr
	}
	return c.keys[user], nil
}

func (c *fakeChain) BlockTime(ctx context.Context, blockHash common.Hash) (time.Time, error) {
	if c.blockErr != nil {
		return time.Time{}, c.blockErr
	}
	return c.blockTime, nil
}

type fakeNotifier struct {
	updates []notify.Update
}

func (n *fakeNotifier) Publish(update notify.Update) {
	n.updates = append(n.updates, update)
}

func newTestProjector(t *testing.T) (*Projector, storage.Store, *fakeChain, *fakeNotifier) {
	t.Helper()
	store := testutil.NewTestStore(t)
	chain := &fakeChain{
		keys:      make(map[common.Address]string),
		blockTime: time.Unix(1700000100, 0).UTC(),
	}
	notifier := &fakeNotifier{}
	return NewProjector(store, chain, notifier, zap.NewNop()), store, chain, notifier
}

func testEnv(kind Kind, payload any) *Envelope {
	return &Envelope{
		Kind: kind,
		Meta: Meta{
			TxHash:      testTxHash,
			BlockNumber: 100,
			BlockHash:   testBlockHash,
		},
		Payload: payload,
	}
}

func TestProjector_RegistrationLifecycle(t *testing.T) {
	p, store, _, notifier := newTestProjector(t)
	ctx := context.Background()

	requested := testEnv(KindRegistrationRequested, &RegistrationRequested{
		RequestID:    big.NewInt(7),
		HospitalName: "Acme Clinic",
		Requester:    testRequester,
	})
	if err := p.applyRegistrationRequested(ctx, requested); err != nil {
		t.Fatalf("applyRegistrationRequested() error = %v", err)
	}

	req, err := store.GetRegistrationRequest(ctx, 7)
	if err != nil {
		t.Fatalf("GetRegistrationRequest() error = %v", err)
	}
	if req.Status != types.RegistrationPending {
		t.Errorf("request status = %s, want %s", req.Status, types.RegistrationPending)
	}
	if req.HospitalName != "Acme Clinic" {
		t.Errorf("hospital name = %q, want Acme Clinic", req.HospitalName)
	}

	// The verification step outside the chain moves the request to verifying
	// before the approval transaction lands.
	req.Status = types.RegistrationVerifying
	if err := store.PutRegistrationRequest(ctx, req); err != nil {
		t.Fatalf("PutRegistrationRequest() error = %v", err)
	}

	verified := testEnv(KindHospitalVerified, &HospitalVerified{
		HospitalID: big.NewInt(7),
		Admin:      testAdmin,
	})
	if err := p.applyHospitalVerified(ctx, verified); err != nil {
		t.Fatalf("applyHospitalVerified() error = %v", err)
	}

	req, err = store.GetRegistrationRequest(ctx, 7)
	if err != nil {
		t.Fatalf("GetRegistrationRequest() error = %v", err)
	}
	if req.Status != types.RegistrationApproved {
		t.Errorf("request status = %s, want %s", req.Status, types.RegistrationApproved)
	}

	hospital, err := store.GetHospital(ctx, 7)
	if err != nil {
		t.Fatalf("GetHospital() error = %v", err)
	}
	if hospital.Name != "Acme Clinic" {
		t.Errorf("hospital name = %q, want the request's name", hospital.Name)
	}
	if !hospital.IsVerified || hospital.Status != types.HospitalActive {
		t.Errorf("hospital = %+v, want verified and active", hospital)
	}
	if hospital.AdminAddress != types.NormalizeAddress(testAdmin) {
		t.Errorf("admin address = %s not normalized", hospital.AdminAddress)
	}

	admin, err := store.GetUser(ctx, types.NormalizeAddress(testAdmin))
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if admin.Role != types.RoleHospitalAdmin {
		t.Errorf("admin role = %s, want %s", admin.Role, types.RoleHospitalAdmin)
	}
	if admin.HospitalID == nil || *admin.HospitalID != 7 {
		t.Errorf("admin hospital = %v, want 7", admin.HospitalID)
	}
	if !admin.IsVerified || admin.ProfessionalStatus != types.ProfessionalActive {
		t.Errorf("admin = %+v, want verified and active", admin)
	}

	// Re-delivery converges on the same state.
	if err := p.applyHospitalVerified(ctx, verified); err != nil {
		t.Fatalf("re-applied applyHospitalVerified() error = %v", err)
	}

	if len(notifier.updates) != 3 {
		t.Fatalf("notifier got %d updates, want 3", len(notifier.updates))
	}
	if notifier.updates[1].Entity != "hospitals" || notifier.updates[1].Key != "7" {
		t.Errorf("hospital update = %+v", notifier.updates[1])
	}
}

func TestProjector_HospitalVerified_NoRequest(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	env := testEnv(KindHospitalVerified, &HospitalVerified{
		HospitalID: big.NewInt(99),
		Admin:      testAdmin,
	})
	err := p.applyHospitalVerified(ctx, env)
	if !errors.Is(err, errSkip) {
		t.Fatalf("applyHospitalVerified() error = %v, want errSkip", err)
	}
	if _, err := store.GetHospital(ctx, 99); !errors.Is(err, storage.ErrNotFound) {
		t.Error("hospital was created despite the skip")
	}
}

func TestProjector_HospitalVerified_WrongStatus(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	if err := store.PutRegistrationRequest(ctx, &types.RegistrationRequest{
		RequestID:    8,
		HospitalName: "Beta Hospital",
		Status:       types.RegistrationPending,
	}); err != nil {
		t.Fatalf("PutRegistrationRequest() error = %v", err)
	}

	env := testEnv(KindHospitalVerified, &HospitalVerified{
		HospitalID: big.NewInt(8),
		Admin:      testAdmin,
	})
	err := p.applyHospitalVerified(ctx, env)
	if !errors.Is(err, errSkip) {
		t.Fatalf("applyHospitalVerified() error = %v, want errSkip", err)
	}

	req, err := store.GetRegistrationRequest(ctx, 8)
	if err != nil {
		t.Fatalf("GetRegistrationRequest() error = %v", err)
	}
	if req.Status != types.RegistrationPending {
		t.Errorf("request status = %s, want unchanged %s", req.Status, types.RegistrationPending)
	}
}

func TestProjector_HospitalRevoked_Cascade(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	five := uint64(5)
	six := uint64(6)
	if err := store.PutHospital(ctx, &types.Hospital{
		HospitalID: 5, Name: "Gamma", IsVerified: true, Status: types.HospitalActive,
	}); err != nil {
		t.Fatal(err)
	}
	for _, u := range []*types.User{
		{Address: "0x01", Role: types.RoleDoctor, HospitalID: &five, ProfessionalStatus: types.ProfessionalActive, IsVerified: true},
		{Address: "0x02", Role: types.RoleLabTechnician, HospitalID: &five, ProfessionalStatus: types.ProfessionalActive, IsVerified: true},
		{Address: "0x03", Role: types.RoleDoctor, HospitalID: &six, ProfessionalStatus: types.ProfessionalActive, IsVerified: true},
	} {
		if err := store.PutUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	env := testEnv(KindHospitalRevoked, &HospitalRevoked{HospitalID: big.NewInt(5)})
	if err := p.applyHospitalRevoked(ctx, env); err != nil {
		t.Fatalf("applyHospitalRevoked() error = %v", err)
	}

	hospital, err := store.GetHospital(ctx, 5)
	if err != nil {
		t.Fatalf("GetHospital() error = %v", err)
	}
	if hospital.Status != types.HospitalRevoked || hospital.IsVerified {
		t.Errorf("hospital = %+v, want revoked and unverified", hospital)
	}

	for _, addr := range []string{"0x01", "0x02"} {
		user, err := store.GetUser(ctx, addr)
		if err != nil {
			t.Fatalf("GetUser(%s) error = %v", addr, err)
		}
		if user.ProfessionalStatus != types.ProfessionalRevoked || user.IsVerified {
			t.Errorf("user %s = %+v, want revoked", addr, user)
		}
	}

	outside, err := store.GetUser(ctx, "0x03")
	if err != nil {
		t.Fatalf("GetUser(0x03) error = %v", err)
	}
	if outside.ProfessionalStatus != types.ProfessionalActive || !outside.IsVerified {
		t.Errorf("user of another hospital was touched: %+v", outside)
	}
}

func TestProjector_HospitalRevoked_UnknownHospital(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	five := uint64(5)
	if err := store.PutUser(ctx, &types.User{
		Address: "0x01", Role: types.RoleDoctor, HospitalID: &five,
		ProfessionalStatus: types.ProfessionalActive, IsVerified: true,
	}); err != nil {
		t.Fatal(err)
	}

	// The cascade still runs when the hospital document is missing.
	env := testEnv(KindHospitalRevoked, &HospitalRevoked{HospitalID: big.NewInt(5)})
	if err := p.applyHospitalRevoked(ctx, env); err != nil {
		t.Fatalf("applyHospitalRevoked() error = %v", err)
	}

	user, err := store.GetUser(ctx, "0x01")
	if err != nil {
		t.Fatal(err)
	}
	if user.ProfessionalStatus != types.ProfessionalRevoked {
		t.Errorf("user status = %s, want revoked", user.ProfessionalStatus)
	}
}

func TestProjector_RoleAssignedAndRevoked(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()
	address := types.NormalizeAddress(testDoctor)

	assigned := testEnv(KindRoleAssigned, &RoleAssigned{
		User: testDoctor, Role: 1, HospitalID: big.NewInt(5),
	})
	if err := p.applyRoleAssigned(ctx, assigned); err != nil {
		t.Fatalf("applyRoleAssigned() error = %v", err)
	}

	user, err := store.GetUser(ctx, address)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Role != types.RoleDoctor {
		t.Errorf("role = %s, want %s", user.Role, types.RoleDoctor)
	}
	if user.HospitalID == nil || *user.HospitalID != 5 {
		t.Errorf("hospital = %v, want 5", user.HospitalID)
	}

	revoked := testEnv(KindRoleRevoked, &RoleRevoked{User: testDoctor})
	if err := p.applyRoleRevoked(ctx, revoked); err != nil {
		t.Fatalf("applyRoleRevoked() error = %v", err)
	}

	user, err = store.GetUser(ctx, address)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.Role != types.RolePatient {
		t.Errorf("role after revocation = %s, want %s", user.Role, types.RolePatient)
	}
	if user.HospitalID != nil {
		t.Errorf("hospital after revocation = %v, want nil", user.HospitalID)
	}
	if user.IsVerified || user.ProfessionalStatus != types.ProfessionalRevoked {
		t.Errorf("user after revocation = %+v", user)
	}
}

func TestProjector_RoleAssigned_UnknownCode(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	env := testEnv(KindRoleAssigned, &RoleAssigned{
		User: testDoctor, Role: 42, HospitalID: big.NewInt(5),
	})
	if err := p.applyRoleAssigned(ctx, env); err != nil {
		t.Fatalf("applyRoleAssigned() error = %v", err)
	}

	user, err := store.GetUser(ctx, types.NormalizeAddress(testDoctor))
	if err != nil {
		t.Fatal(err)
	}
	if user.Role != types.RoleUnassigned {
		t.Errorf("role = %s, want sentinel %s", user.Role, types.RoleUnassigned)
	}
}

func TestProjector_PublicKeySaved(t *testing.T) {
	p, store, chain, _ := newTestProjector(t)
	ctx := context.Background()
	chain.keys[testPatient] = "0x04deadbeef"

	env := testEnv(KindPublicKeySaved, &PublicKeySaved{User: testPatient})
	if err := p.applyPublicKeySaved(ctx, env); err != nil {
		t.Fatalf("applyPublicKeySaved() error = %v", err)
	}

	user, err := store.GetUser(ctx, types.NormalizeAddress(testPatient))
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.PublicKey != "0x04deadbeef" {
		t.Errorf("public key = %q, want 0x04deadbeef", user.PublicKey)
	}
	if user.Role != types.RolePatient {
		t.Errorf("fresh user role = %s, want patient default", user.Role)
	}
}

func TestProjector_PublicKeySaved_EmptyKey(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	env := testEnv(KindPublicKeySaved, &PublicKeySaved{User: testPatient})
	err := p.applyPublicKeySaved(ctx, env)
	if !errors.Is(err, errSkip) {
		t.Fatalf("applyPublicKeySaved() error = %v, want errSkip", err)
	}
	if _, err := store.GetUser(ctx, types.NormalizeAddress(testPatient)); !errors.Is(err, storage.ErrNotFound) {
		t.Error("user was created despite the skip")
	}
}

func TestProjector_PublicKeySaved_ChainError(t *testing.T) {
	p, _, chain, _ := newTestProjector(t)
	chain.keyErr = errors.New("rpc unavailable")

	env := testEnv(KindPublicKeySaved, &PublicKeySaved{User: testPatient})
	err := p.applyPublicKeySaved(context.Background(), env)
	if err == nil || errors.Is(err, errSkip) {
		t.Fatalf("applyPublicKeySaved() error = %v, want a hard failure", err)
	}
}

func TestProjector_ConcurrentUserMutationsKeepAllFields(t *testing.T) {
	p, store, chain, _ := newTestProjector(t)
	ctx := context.Background()
	chain.keys[testDoctor] = "0x04feedface"
	address := types.NormalizeAddress(testDoctor)

	// Two events for the same user land on different workers. Neither
	// mutation may overwrite the other's fields.
	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		errs := make(chan error, 2)

		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- p.applyPublicKeySaved(ctx, testEnv(KindPublicKeySaved, &PublicKeySaved{User: testDoctor}))
		}()
		go func() {
			defer wg.Done()
			errs <- p.applyRoleAssigned(ctx, testEnv(KindRoleAssigned, &RoleAssigned{
				User: testDoctor, Role: 1, HospitalID: big.NewInt(5),
			}))
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("handler error = %v", err)
			}
		}

		user, err := store.GetUser(ctx, address)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if user.Role != types.RoleDoctor {
			t.Fatalf("iteration %d: role = %s, want %s", i, user.Role, types.RoleDoctor)
		}
		if user.PublicKey != "0x04feedface" {
			t.Fatalf("iteration %d: public key = %q, the key mutation was lost", i, user.PublicKey)
		}
	}
}

func TestProjector_RecordAdded(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	env := testEnv(KindRecordAdded, &RecordAdded{
		RecordID:   big.NewInt(11),
		Owner:      testPatient,
		Title:      "Blood Panel",
		IPFSHash:   "QmHash123",
		Category:   "lab_result",
		IsVerified: true,
		VerifiedBy: testDoctor,
		Timestamp:  big.NewInt(1700000000),
	})
	if err := p.applyRecordAdded(ctx, env); err != nil {
		t.Fatalf("applyRecordAdded() error = %v", err)
	}

	record, err := store.GetRecord(ctx, 11)
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if record.Owner != types.NormalizeAddress(testPatient) {
		t.Errorf("owner = %s not normalized", record.Owner)
	}
	if !record.Timestamp.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Errorf("timestamp = %v, want epoch 1700000000", record.Timestamp)
	}

	// Re-delivery overwrites with identical state.
	if err := p.applyRecordAdded(ctx, env); err != nil {
		t.Fatalf("re-applied applyRecordAdded() error = %v", err)
	}
}

func TestProjector_ProfessionalAccessRequested(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()

	env := testEnv(KindProfessionalAccessRequested, &ProfessionalAccessRequested{
		RequestID:    big.NewInt(2),
		RecordIDs:    []*big.Int{big.NewInt(4), big.NewInt(9)},
		Professional: testDoctor,
		Patient:      testPatient,
	})
	if err := p.applyProfessionalAccessRequested(ctx, env); err != nil {
		t.Fatalf("applyProfessionalAccessRequested() error = %v", err)
	}

	req, err := store.GetAccessRequest(ctx, 2)
	if err != nil {
		t.Fatalf("GetAccessRequest() error = %v", err)
	}
	if len(req.RecordIDs) != 2 || req.RecordIDs[0] != 4 || req.RecordIDs[1] != 9 {
		t.Errorf("record ids = %v, want [4 9]", req.RecordIDs)
	}
	if req.Status != types.AccessRequestPending {
		t.Errorf("status = %s, want pending", req.Status)
	}
}

func TestProjector_AccessGranted_OverwritesPriorGrant(t *testing.T) {
	p, store, chain, _ := newTestProjector(t)
	ctx := context.Background()

	first := testEnv(KindAccessGranted, &AccessGranted{
		RecordID:     big.NewInt(11),
		Owner:        testPatient,
		Grantee:      testDoctor,
		Expiration:   big.NewInt(1800000000),
		EncryptedDek: []byte{0x01, 0x02},
	})
	if err := p.applyAccessGranted(ctx, first); err != nil {
		t.Fatalf("applyAccessGranted() error = %v", err)
	}

	grant, err := store.GetAccessGrant(ctx, 11, types.NormalizeAddress(testDoctor))
	if err != nil {
		t.Fatalf("GetAccessGrant() error = %v", err)
	}
	if grant.RewrappedKey != "0102" {
		t.Errorf("rewrapped key = %q, want 0102", grant.RewrappedKey)
	}
	if !grant.CreatedAt.Equal(chain.blockTime) {
		t.Errorf("created at = %v, want block time %v", grant.CreatedAt, chain.blockTime)
	}

	second := testEnv(KindAccessGranted, &AccessGranted{
		RecordID:     big.NewInt(11),
		Owner:        testPatient,
		Grantee:      testDoctor,
		Expiration:   big.NewInt(1900000000),
		EncryptedDek: []byte{0x03, 0x04},
	})
	if err := p.applyAccessGranted(ctx, second); err != nil {
		t.Fatalf("second applyAccessGranted() error = %v", err)
	}

	grant, err = store.GetAccessGrant(ctx, 11, types.NormalizeAddress(testDoctor))
	if err != nil {
		t.Fatalf("GetAccessGrant() error = %v", err)
	}
	if grant.RewrappedKey != "0304" {
		t.Errorf("rewrapped key = %q, want the newer grant's 0304", grant.RewrappedKey)
	}
	if !grant.ExpirationTimestamp.Equal(time.Unix(1900000000, 0).UTC()) {
		t.Errorf("expiration = %v, want the newer grant's", grant.ExpirationTimestamp)
	}

	grants, err := store.ListAccessGrantsByRecord(ctx, 11)
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Errorf("record has %d grants, want the single overwritten one", len(grants))
	}
}

func TestProjector_AccessRevoked(t *testing.T) {
	p, store, _, _ := newTestProjector(t)
	ctx := context.Background()
	professional := types.NormalizeAddress(testDoctor)

	for _, id := range []uint64{4, 9, 12} {
		if err := store.PutAccessGrant(ctx, &types.AccessGrant{
			RecordID:            id,
			ProfessionalAddress: professional,
			PatientAddress:      types.NormalizeAddress(testPatient),
		}); err != nil {
			t.Fatal(err)
		}
	}

	// Another professional holds a grant on one of the revoked records.
	other := types.NormalizeAddress(testRequester)
	if err := store.PutAccessGrant(ctx, &types.AccessGrant{
		RecordID:            4,
		ProfessionalAddress: other,
		PatientAddress:      types.NormalizeAddress(testPatient),
	}); err != nil {
		t.Fatal(err)
	}

	env := testEnv(KindAccessRevoked, &AccessRevoked{
		Patient:      testPatient,
		Professional: testDoctor,
		RecordIDs:    []*big.Int{big.NewInt(4), big.NewInt(9), big.NewInt(77)},
	})
	if err := p.applyAccessRevoked(ctx, env); err != nil {
		t.Fatalf("applyAccessRevoked() error = %v", err)
	}

	for _, id := range []uint64{4, 9} {
		if _, err := store.GetAccessGrant(ctx, id, professional); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("grant %d survived revocation", id)
		}
	}
	if _, err := store.GetAccessGrant(ctx, 12, professional); err != nil {
		t.Errorf("unrelated grant was deleted: %v", err)
	}
	if _, err := store.GetAccessGrant(ctx, 4, other); err != nil {
		t.Errorf("other professional's grant on a revoked record was deleted: %v", err)
	}

	// Revoking again is a no-op.
	if err := p.applyAccessRevoked(ctx, env); err != nil {
		t.Fatalf("re-applied applyAccessRevoked() error = %v", err)
	}
}

func TestProjector_HandlersCoverAllKinds(t *testing.T) {
	p, _, _, _ := newTestProjector(t)
	handlers := p.Handlers()
	if len(handlers) != len(AllKinds) {
		t.Errorf("dispatch table has %d entries, want %d", len(handlers), len(AllKinds))
	}
	for _, kind := range AllKinds {
		if handlers[kind] == nil {
			t.Errorf("kind %s has no handler", kind)
		}
	}
}
