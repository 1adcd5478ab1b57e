package cmd

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// DGT address format: "dgt1" + lowercase hex of the first 20 bytes of
	// SHA3-256(public key). 44 characters total. Addresses are externally
	// visible identifiers; this encoding is fixed and must not change.
	AddressPrefix  = "dgt1"
	AddressHashLen = 20
	AddressLen     = len(AddressPrefix) + AddressHashLen*2
)

// DeriveAddress computes the chain address for an ML-DSA-87 public key.
func DeriveAddress(publicKey []byte) string {
	digest := sha3.Sum256(publicKey)
	return AddressPrefix + hex.EncodeToString(digest[:AddressHashLen])
}

// IsValidAddress checks the shape of a DGT address. It cannot verify that a
// keyholder exists, only that the string is well-formed.
func IsValidAddress(address string) bool {
	if len(address) != AddressLen || !strings.HasPrefix(address, AddressPrefix) {
		return false
	}
	body := address[len(AddressPrefix):]
	if body != strings.ToLower(body) {
		return false
	}
	decoded, err := hex.DecodeString(body)
	return err == nil && len(decoded) == AddressHashLen
}
