package cmd

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the wallet core. Callers match these with
// errors.Is / errors.As; messages never include passphrases or key material.
var (
	// ErrKeystoreParse covers malformed or tampered keystore files,
	// including an address that no longer matches the stored public key.
	ErrKeystoreParse = errors.New("keystore record is malformed or tampered")

	// ErrDecryptionAuth is the single failure mode for a failed decrypt.
	// It deliberately does not distinguish a wrong passphrase from a
	// corrupted ciphertext.
	ErrDecryptionAuth = errors.New("keystore decryption failed")

	// ErrWeakPassphrase rejects passphrases below the minimum length,
	// regardless of which source supplied them.
	ErrWeakPassphrase = errors.New("passphrase is below the minimum length")

	// ErrCryptoUnavailable means the signature provider is unreachable or
	// misconfigured. Not retried: retrying a misconfiguration is not
	// productive.
	ErrCryptoUnavailable = errors.New("signature provider unavailable")

	// ErrKeystoreNotFound means no record in the keystore directory matches
	// the requested address.
	ErrKeystoreNotFound = errors.New("no keystore record matches address")

	// ErrNodeHashMismatch means the node assigned a transaction hash that
	// differs from the locally computed one. This is a protocol-level error
	// and must never be silently ignored.
	ErrNodeHashMismatch = errors.New("node-assigned transaction hash differs from local hash")
)

// NetworkError classifies failures talking to the node. The wallet itself
// never retries; it reports Retryable and leaves retry policy to the caller.
type NetworkError struct {
	Op        string // "nonce", "status", "submit"
	Code      string // machine-readable rejection code from the node, if any
	Retryable bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("node %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("node %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
