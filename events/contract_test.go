package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryABI_EventSignatures(t *testing.T) {
	abi := RegistryABI()

	signatures := map[string]string{
		"RegistrationRequested":       "RegistrationRequested(uint256,string,address)",
		"HospitalVerified":            "HospitalVerified(uint256,address)",
		"HospitalRevoked":             "HospitalRevoked(uint256)",
		"RoleAssigned":                "RoleAssigned(address,uint8,uint256)",
		"RoleRevoked":                 "RoleRevoked(address)",
		"PublicKeySaved":              "PublicKeySaved(address)",
		"RecordAdded":                 "RecordAdded(uint256,address,string,string,string,bool,address,uint256)",
		"ProfessionalAccessRequested": "ProfessionalAccessRequested(uint256,uint256[],address,address)",
		"AccessGranted":               "AccessGranted(uint256,address,address,uint256,bytes)",
		"AccessRevoked":               "AccessRevoked(address,address,uint256[])",
	}

	require.Len(t, abi.Events, len(signatures))
	for name, sig := range signatures {
		event, ok := abi.Events[name]
		require.True(t, ok, "event %s missing from ABI", name)
		assert.Equal(t, sig, event.Sig)
		assert.NotEqual(t, common.Hash{}, event.ID, "event %s has a zero ID", name)
	}
}

func TestRegistryABI_GetPublicKey(t *testing.T) {
	abi := RegistryABI()

	method, ok := abi.Methods["getPublicKey"]
	require.True(t, ok)
	assert.Equal(t, "view", method.StateMutability)
	require.Len(t, method.Inputs, 1)
	assert.Equal(t, "address", method.Inputs[0].Type.String())
	require.Len(t, method.Outputs, 1)
	assert.Equal(t, "string", method.Outputs[0].Type.String())
}

func TestRegistryABI_DistinctEventIDs(t *testing.T) {
	abi := RegistryABI()

	seen := make(map[string]string)
	for name, event := range abi.Events {
		if prev, dup := seen[event.ID.Hex()]; dup {
			t.Errorf("events %s and %s share topic %s", prev, name, event.ID.Hex())
		}
		seen[event.ID.Hex()] = name
	}
}
