// Package types defines the projected entities kept in the off-chain store.
// Every entity is keyed by a natural business identifier; address fields are
// stored as lower-cased hex strings so the same on-chain identity never maps
// to two documents.
package types

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RegistrationStatus tracks a hospital registration request through its
// lifecycle on the registry contract.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending_hospital"
	RegistrationVerifying RegistrationStatus = "verifying"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationRevoked   RegistrationStatus = "revoked"
)

// HospitalStatus tracks a verified hospital's lifecycle.
type HospitalStatus string

const (
	HospitalActive   HospitalStatus = "active"
	HospitalRevoking HospitalStatus = "revoking"
	HospitalRevoked  HospitalStatus = "revoked"
)

// Role is a user's projected role name.
type Role string

const (
	RolePatient       Role = "Patient"
	RoleDoctor        Role = "Doctor"
	RoleLabTechnician Role = "LabTechnician"
	RoleHospitalAdmin Role = "HospitalAdmin"

	// RoleUnassigned is the sentinel for role codes the closed mapping
	// table does not recognize.
	RoleUnassigned Role = "Unassigned Professional"
)

// ProfessionalStatus tracks whether a professional's credentials are live.
type ProfessionalStatus string

const (
	ProfessionalActive  ProfessionalStatus = "active"
	ProfessionalRevoked ProfessionalStatus = "revoked"
)

// AccessRequestStatus tracks a professional's request for record access.
type AccessRequestStatus string

const (
	AccessRequestPending AccessRequestStatus = "pending"
)

// RoleFromCode maps an on-chain role code to its projected role name.
// The table is closed: unknown codes degrade to RoleUnassigned rather
// than failing the event.
func RoleFromCode(code uint8) Role {
	switch code {
	case 1:
		return RoleDoctor
	case 7:
		return RoleLabTechnician
	default:
		return RoleUnassigned
	}
}

// NormalizeAddress canonicalizes an on-chain address to the lower-cased hex
// form used for keys and stored values.
func NormalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// RegistrationRequest is a hospital's pending registration, created on the
// request event and advanced by verification events.
type RegistrationRequest struct {
	RequestID        uint64             `json:"requestId"`
	HospitalName     string             `json:"hospitalName"`
	RequesterAddress string             `json:"requesterAddress"`
	Status           RegistrationStatus `json:"status"`
}

// Hospital is a verified care provider.
type Hospital struct {
	HospitalID   uint64         `json:"hospitalId"`
	Name         string         `json:"name"`
	AdminAddress string         `json:"adminAddress"`
	IsVerified   bool           `json:"isVerified"`
	Status       HospitalStatus `json:"status"`
}

// User is any chain identity the registry knows about: patients by default,
// professionals once a role is assigned. HospitalID is nil for users with no
// hospital association.
type User struct {
	Address            string             `json:"address"`
	Name               string             `json:"name,omitempty"`
	Role               Role               `json:"role"`
	HospitalID         *uint64            `json:"hospitalId,omitempty"`
	ProfessionalStatus ProfessionalStatus `json:"professionalStatus,omitempty"`
	IsVerified         bool               `json:"isVerified"`
	PublicKey          string             `json:"publicKey,omitempty"`
}

// Record is a medical record reference; created once on the upload event and
// effectively immutable afterwards.
type Record struct {
	RecordID   uint64    `json:"recordId"`
	Owner      string    `json:"owner"`
	Title      string    `json:"title"`
	IPFSHash   string    `json:"ipfsHash"`
	Category   string    `json:"category"`
	IsVerified bool      `json:"isVerified"`
	UploadedBy string    `json:"uploadedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// AccessRequest is a professional's request to read one or more records.
type AccessRequest struct {
	RequestID           uint64              `json:"requestId"`
	RecordIDs           []uint64            `json:"recordIds"`
	ProfessionalAddress string              `json:"professionalAddress"`
	PatientAddress      string              `json:"patientAddress"`
	Status              AccessRequestStatus `json:"status"`
}

// AccessGrant is a live grant of one record to one professional. The
// (RecordID, ProfessionalAddress) pair is the identity: a new grant for the
// same pair overwrites the previous one.
type AccessGrant struct {
	RecordID            uint64    `json:"recordId"`
	ProfessionalAddress string    `json:"professionalAddress"`
	PatientAddress      string    `json:"patientAddress"`
	ExpirationTimestamp time.Time `json:"expirationTimestamp"`
	RewrappedKey        string    `json:"rewrappedKey"`
	CreatedAt           time.Time `json:"createdAt"`
}
