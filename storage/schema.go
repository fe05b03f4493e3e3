package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes for the projected collections. Numeric ids are zero-padded to
// a fixed width so prefix iteration yields documents in id order.
const (
	prefixRegRequests    = "/data/regreq/"
	prefixHospitals      = "/data/hospitals/"
	prefixUsers          = "/data/users/"
	prefixRecords        = "/data/records/"
	prefixAccessRequests = "/data/accessreq/"
	prefixGrants         = "/data/grants/"
)

// RegistrationRequestKey returns the key for a registration request.
// Format: /data/regreq/{requestId}
func RegistrationRequestKey(requestID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixRegRequests, requestID))
}

// HospitalKey returns the key for a hospital.
// Format: /data/hospitals/{hospitalId}
func HospitalKey(hospitalID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixHospitals, hospitalID))
}

// UserKey returns the key for a user. The address must already be the
// lower-cased hex form.
// Format: /data/users/{address}
func UserKey(address string) []byte {
	return []byte(prefixUsers + strings.ToLower(address))
}

// UserKeyPrefix returns the prefix for iterating all users.
func UserKeyPrefix() []byte {
	return []byte(prefixUsers)
}

// RecordKey returns the key for a record.
// Format: /data/records/{recordId}
func RecordKey(recordID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixRecords, recordID))
}

// AccessRequestKey returns the key for an access request.
// Format: /data/accessreq/{requestId}
func AccessRequestKey(requestID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixAccessRequests, requestID))
}

// AccessGrantKey returns the key for a grant. The (recordId, professional)
// pair is the grant identity.
// Format: /data/grants/{recordId}/{professional}
func AccessGrantKey(recordID uint64, professional string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixGrants, recordID, strings.ToLower(professional)))
}

// AccessGrantKeyPrefix returns the prefix for iterating all grants on a record.
func AccessGrantKeyPrefix(recordID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/", prefixGrants, recordID))
}

// ParseAccessGrantKey parses a grant key into its record id and professional
// address.
func ParseAccessGrantKey(key []byte) (uint64, string, error) {
	keyStr := string(key)
	if !strings.HasPrefix(keyStr, prefixGrants) {
		return 0, "", fmt.Errorf("invalid grant key prefix: %s", keyStr)
	}

	parts := strings.TrimPrefix(keyStr, prefixGrants)
	segments := strings.SplitN(parts, "/", 2)
	if len(segments) != 2 || segments[1] == "" {
		return 0, "", fmt.Errorf("invalid grant key format: %s", keyStr)
	}

	recordID, err := strconv.ParseUint(segments[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid grant key record id: %w", err)
	}

	return recordID, segments[1], nil
}

// prefixUpperBound returns the exclusive upper bound for iterating a prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix), len(prefix)+1)
	copy(upper, prefix)
	return append(upper, 0xff)
}
