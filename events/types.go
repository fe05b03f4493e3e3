// Package events decodes registry contract logs and projects them into the
// off-chain store.
package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies a recognized registry event. The set is closed: the
// dispatcher refuses to start unless every kind has a handler.
type Kind string

const (
	KindRegistrationRequested       Kind = "RegistrationRequested"
	KindHospitalVerified            Kind = "HospitalVerified"
	KindHospitalRevoked             Kind = "HospitalRevoked"
	KindRoleAssigned                Kind = "RoleAssigned"
	KindRoleRevoked                 Kind = "RoleRevoked"
	KindPublicKeySaved              Kind = "PublicKeySaved"
	KindRecordAdded                 Kind = "RecordAdded"
	KindProfessionalAccessRequested Kind = "ProfessionalAccessRequested"
	KindAccessGranted               Kind = "AccessGranted"
	KindAccessRevoked               Kind = "AccessRevoked"
)

// AllKinds lists every recognized event kind.
var AllKinds = []Kind{
	KindRegistrationRequested,
	KindHospitalVerified,
	KindHospitalRevoked,
	KindRoleAssigned,
	KindRoleRevoked,
	KindPublicKeySaved,
	KindRecordAdded,
	KindProfessionalAccessRequested,
	KindAccessGranted,
	KindAccessRevoked,
}

// Meta carries the chain location of an event, used for logging and for
// resolving the containing block.
type Meta struct {
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	Removed     bool
}

// Envelope is one decoded event ready for dispatch.
type Envelope struct {
	Kind    Kind
	Meta    Meta
	Payload any
}

// RegistrationRequested is emitted when a hospital asks to join the registry.
type RegistrationRequested struct {
	RequestID    *big.Int
	HospitalName string
	Requester    common.Address
}

// HospitalVerified is emitted when a registration request is approved. The
// hospital id is the id of the originating request.
type HospitalVerified struct {
	HospitalID *big.Int
	Admin      common.Address
}

// HospitalRevoked is emitted when a hospital's registration is withdrawn.
type HospitalRevoked struct {
	HospitalID *big.Int
}

// RoleAssigned is emitted when a hospital admin assigns a professional role.
type RoleAssigned struct {
	User       common.Address
	Role       uint8
	HospitalID *big.Int
}

// RoleRevoked is emitted when a professional's role is withdrawn.
type RoleRevoked struct {
	User common.Address
}

// PublicKeySaved is emitted when a user publishes an encryption key. The key
// itself is not in the event; handlers read it back from the contract.
type PublicKeySaved struct {
	User common.Address
}

// RecordAdded is emitted when a medical record reference is uploaded.
type RecordAdded struct {
	RecordID   *big.Int
	Owner      common.Address
	Title      string
	IPFSHash   string
	Category   string
	IsVerified bool
	VerifiedBy common.Address
	Timestamp  *big.Int
}

// ProfessionalAccessRequested is emitted when a professional asks a patient
// for record access.
type ProfessionalAccessRequested struct {
	RequestID    *big.Int
	RecordIDs    []*big.Int
	Professional common.Address
	Patient      common.Address
}

// AccessGranted is emitted when a patient grants a professional access to one
// record.
type AccessGranted struct {
	RecordID     *big.Int
	Owner        common.Address
	Grantee      common.Address
	Expiration   *big.Int
	EncryptedDek []byte
}

// AccessRevoked is emitted when a patient withdraws a professional's access
// to a set of records.
type AccessRevoked struct {
	Patient      common.Address
	Professional common.Address
	RecordIDs    []*big.Int
}
