package events

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrUnknownEvent is returned when a log's signature topic matches no
// recognized registry event.
var ErrUnknownEvent = errors.New("unknown event")

// Decoder turns raw contract logs into typed envelopes.
type Decoder struct {
	byID map[common.Hash]abi.Event
}

// NewDecoder creates a decoder for the registry contract events
func NewDecoder() *Decoder {
	byID := make(map[common.Hash]abi.Event, len(registryABI.Events))
	for _, event := range registryABI.Events {
		byID[event.ID] = event
	}
	return &Decoder{byID: byID}
}

// Decode decodes a single log. Logs whose signature topic is not in the
// registry ABI return ErrUnknownEvent.
func (d *Decoder) Decode(log gethtypes.Log) (*Envelope, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log has no topics", ErrUnknownEvent)
	}

	event, ok := d.byID[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s", ErrUnknownEvent, log.Topics[0].Hex())
	}

	args := make(map[string]interface{})

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse indexed parameters of %s: %w", event.Name, err)
		}
	}

	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack data of %s: %w", event.Name, err)
	}

	payload, err := buildPayload(Kind(event.Name), args)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Kind: Kind(event.Name),
		Meta: Meta{
			TxHash:      log.TxHash,
			BlockNumber: log.BlockNumber,
			BlockHash:   log.BlockHash,
			Removed:     log.Removed,
		},
		Payload: payload,
	}, nil
}

func buildPayload(kind Kind, args map[string]interface{}) (any, error) {
	switch kind {
	case KindRegistrationRequested:
		return &RegistrationRequested{
			RequestID:    bigArg(args, "requestId"),
			HospitalName: stringArg(args, "hospitalName"),
			Requester:    addrArg(args, "requester"),
		}, nil
	case KindHospitalVerified:
		return &HospitalVerified{
			HospitalID: bigArg(args, "hospitalId"),
			Admin:      addrArg(args, "admin"),
		}, nil
	case KindHospitalRevoked:
		return &HospitalRevoked{
			HospitalID: bigArg(args, "hospitalId"),
		}, nil
	case KindRoleAssigned:
		return &RoleAssigned{
			User:       addrArg(args, "user"),
			Role:       uint8Arg(args, "role"),
			HospitalID: bigArg(args, "hospitalId"),
		}, nil
	case KindRoleRevoked:
		return &RoleRevoked{
			User: addrArg(args, "user"),
		}, nil
	case KindPublicKeySaved:
		return &PublicKeySaved{
			User: addrArg(args, "user"),
		}, nil
	case KindRecordAdded:
		return &RecordAdded{
			RecordID:   bigArg(args, "recordId"),
			Owner:      addrArg(args, "owner"),
			Title:      stringArg(args, "title"),
			IPFSHash:   stringArg(args, "ipfsHash"),
			Category:   stringArg(args, "category"),
			IsVerified: boolArg(args, "isVerified"),
			VerifiedBy: addrArg(args, "verifiedBy"),
			Timestamp:  bigArg(args, "timestamp"),
		}, nil
	case KindProfessionalAccessRequested:
		return &ProfessionalAccessRequested{
			RequestID:    bigArg(args, "requestId"),
			RecordIDs:    bigSliceArg(args, "recordIds"),
			Professional: addrArg(args, "professional"),
			Patient:      addrArg(args, "patient"),
		}, nil
	case KindAccessGranted:
		return &AccessGranted{
			RecordID:     bigArg(args, "recordId"),
			Owner:        addrArg(args, "owner"),
			Grantee:      addrArg(args, "grantee"),
			Expiration:   bigArg(args, "expiration"),
			EncryptedDek: bytesArg(args, "encryptedDek"),
		}, nil
	case KindAccessRevoked:
		return &AccessRevoked{
			Patient:      addrArg(args, "patient"),
			Professional: addrArg(args, "professional"),
			RecordIDs:    bigSliceArg(args, "recordIds"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}
}

// The arg helpers tolerate missing keys by returning zero values; the ABI is
// fixed at compile time so a missing key indicates a programming error, not
// a malformed chain payload.

func bigArg(args map[string]interface{}, name string) *big.Int {
	v, _ := args[name].(*big.Int)
	if v == nil {
		v = new(big.Int)
	}
	return v
}

func bigSliceArg(args map[string]interface{}, name string) []*big.Int {
	v, _ := args[name].([]*big.Int)
	return v
}

func addrArg(args map[string]interface{}, name string) common.Address {
	v, _ := args[name].(common.Address)
	return v
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

func boolArg(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}

func uint8Arg(args map[string]interface{}, name string) uint8 {
	v, _ := args[name].(uint8)
	return v
}

func bytesArg(args map[string]interface{}, name string) []byte {
	v, _ := args[name].([]byte)
	return v
}
