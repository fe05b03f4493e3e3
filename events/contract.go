package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// registryABIJSON is the event and read surface of the medical-records
// registry contract. Only the members the indexer consumes are declared.
const registryABIJSON = `[
  {
    "type": "event",
    "name": "RegistrationRequested",
    "inputs": [
      {"name": "requestId", "type": "uint256", "indexed": true},
      {"name": "hospitalName", "type": "string", "indexed": false},
      {"name": "requester", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "HospitalVerified",
    "inputs": [
      {"name": "hospitalId", "type": "uint256", "indexed": true},
      {"name": "admin", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "HospitalRevoked",
    "inputs": [
      {"name": "hospitalId", "type": "uint256", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "RoleAssigned",
    "inputs": [
      {"name": "user", "type": "address", "indexed": true},
      {"name": "role", "type": "uint8", "indexed": false},
      {"name": "hospitalId", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "RoleRevoked",
    "inputs": [
      {"name": "user", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "PublicKeySaved",
    "inputs": [
      {"name": "user", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "RecordAdded",
    "inputs": [
      {"name": "recordId", "type": "uint256", "indexed": true},
      {"name": "owner", "type": "address", "indexed": true},
      {"name": "title", "type": "string", "indexed": false},
      {"name": "ipfsHash", "type": "string", "indexed": false},
      {"name": "category", "type": "string", "indexed": false},
      {"name": "isVerified", "type": "bool", "indexed": false},
      {"name": "verifiedBy", "type": "address", "indexed": false},
      {"name": "timestamp", "type": "uint256", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "ProfessionalAccessRequested",
    "inputs": [
      {"name": "requestId", "type": "uint256", "indexed": true},
      {"name": "recordIds", "type": "uint256[]", "indexed": false},
      {"name": "professional", "type": "address", "indexed": true},
      {"name": "patient", "type": "address", "indexed": true}
    ]
  },
  {
    "type": "event",
    "name": "AccessGranted",
    "inputs": [
      {"name": "recordId", "type": "uint256", "indexed": true},
      {"name": "owner", "type": "address", "indexed": true},
      {"name": "grantee", "type": "address", "indexed": true},
      {"name": "expiration", "type": "uint256", "indexed": false},
      {"name": "encryptedDek", "type": "bytes", "indexed": false}
    ]
  },
  {
    "type": "event",
    "name": "AccessRevoked",
    "inputs": [
      {"name": "patient", "type": "address", "indexed": true},
      {"name": "professional", "type": "address", "indexed": true},
      {"name": "recordIds", "type": "uint256[]", "indexed": false}
    ]
  },
  {
    "type": "function",
    "name": "getPublicKey",
    "stateMutability": "view",
    "inputs": [{"name": "user", "type": "address"}],
    "outputs": [{"name": "", "type": "string"}]
  }
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RegistryABI returns the parsed registry contract ABI
func RegistryABI() abi.ABI {
	return registryABI
}
