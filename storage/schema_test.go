package storage

import (
	"bytes"
	"testing"
)

func TestAccessGrantKey_RoundTrip(t *testing.T) {
	key := AccessGrantKey(42, "0xAbC0000000000000000000000000000000000001")

	recordID, professional, err := ParseAccessGrantKey(key)
	if err != nil {
		t.Fatalf("ParseAccessGrantKey() error = %v", err)
	}
	if recordID != 42 {
		t.Errorf("recordID = %d, want 42", recordID)
	}
	if professional != "0xabc0000000000000000000000000000000000001" {
		t.Errorf("professional = %s, want lower-cased address", professional)
	}
}

func TestParseAccessGrantKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  []byte
	}{
		{"wrong prefix", []byte("/data/users/0xabc")},
		{"missing professional", AccessGrantKeyPrefix(42)},
		{"non-numeric record id", []byte("/data/grants/abc/0xdef")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseAccessGrantKey(tt.key); err == nil {
				t.Error("ParseAccessGrantKey() should fail")
			}
		})
	}
}

func TestKeyOrdering(t *testing.T) {
	// Zero-padded ids keep lexicographic order equal to numeric order.
	if bytes.Compare(RecordKey(9), RecordKey(10)) >= 0 {
		t.Error("RecordKey(9) should sort before RecordKey(10)")
	}
	if bytes.Compare(HospitalKey(99), HospitalKey(100)) >= 0 {
		t.Error("HospitalKey(99) should sort before HospitalKey(100)")
	}
}

func TestAccessGrantKeyPrefix_Bounds(t *testing.T) {
	prefix := AccessGrantKeyPrefix(5)
	key := AccessGrantKey(5, "0xccc0000000000000000000000000000000000001")
	otherKey := AccessGrantKey(6, "0xccc0000000000000000000000000000000000001")

	if !bytes.HasPrefix(key, prefix) {
		t.Error("grant key should match its record prefix")
	}
	if bytes.HasPrefix(otherKey, prefix) {
		t.Error("grant key for another record should not match the prefix")
	}
}
