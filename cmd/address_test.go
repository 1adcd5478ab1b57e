package cmd

import (
	"strings"
	"testing"
)

func TestDeriveAddress(t *testing.T) {
	pk := []byte("not a real public key but deterministic input")
	addr := DeriveAddress(pk)

	if !strings.HasPrefix(addr, AddressPrefix) {
		t.Errorf("address %s missing prefix", addr)
	}
	if len(addr) != AddressLen {
		t.Errorf("address length %d, want %d", len(addr), AddressLen)
	}
	if addr != DeriveAddress(pk) {
		t.Error("derivation is not deterministic")
	}
	if addr == DeriveAddress([]byte("different key")) {
		t.Error("different keys derived the same address")
	}
	if !IsValidAddress(addr) {
		t.Errorf("derived address %s fails validation", addr)
	}
}

func TestIsValidAddress(t *testing.T) {
	valid := DeriveAddress([]byte("some key"))
	cases := []struct {
		name    string
		address string
		want    bool
	}{
		{"derived", valid, true},
		{"empty", "", false},
		{"wrong prefix", "xyz" + valid[3:], false},
		{"too short", valid[:len(valid)-2], false},
		{"too long", valid + "00", false},
		{"uppercase hex", AddressPrefix + strings.ToUpper(valid[len(AddressPrefix):]), false},
		{"non-hex body", AddressPrefix + strings.Repeat("zz", AddressHashLen), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidAddress(tc.address); got != tc.want {
				t.Errorf("IsValidAddress(%q) = %v, want %v", tc.address, got, tc.want)
			}
		})
	}
}
