package types

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestRoleFromCode(t *testing.T) {
	tests := []struct {
		name string
		code uint8
		want Role
	}{
		{"doctor", 1, RoleDoctor},
		{"lab technician", 7, RoleLabTechnician},
		{"zero degrades to sentinel", 0, RoleUnassigned},
		{"unknown degrades to sentinel", 42, RoleUnassigned},
		{"max degrades to sentinel", 255, RoleUnassigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromCode(tt.code))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	addr := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	got := NormalizeAddress(addr)
	assert.Equal(t, "0x5fbdb2315678afecb367f032d93f642f64180aa3", got)

	// Mixed-case inputs of the same address normalize identically.
	same := common.HexToAddress("0x5fbdb2315678afecb367f032d93f642f64180AA3")
	assert.Equal(t, got, NormalizeAddress(same))
}
