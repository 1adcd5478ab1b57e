package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

const MsgTypeSend = "send"

// Message is a single transfer instruction. Amounts are integer minor-unit
// strings; they are never parsed into floats anywhere in the pipeline.
type Message struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	To     string `json:"to"`
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// Transaction is the unsigned payload. Message order is preserved through
// canonicalization; a multi-message transaction is an atomic multi-transfer.
type Transaction struct {
	ChainID string    `json:"chain_id"`
	Nonce   uint64    `json:"nonce"`
	Msgs    []Message `json:"msgs"`
	Fee     string    `json:"fee"`
	Memo    string    `json:"memo"`
}

// SignedTransaction binds a transaction to its ML-DSA-87 signature and
// content-derived identifier. Hash covers the transaction alone, never the
// signature, so any observer holding the plaintext tx can recompute it.
type SignedTransaction struct {
	Tx           Transaction `json:"tx"`
	Algorithm    string      `json:"algorithm"`
	PublicKeyB64 string      `json:"public_key_b64"`
	SignatureB64 string      `json:"signature_b64"`
	Hash         string      `json:"hash"`
}

// checkAmountString accepts non-empty strings of ASCII digits with at least
// one non-zero digit. Leading zeros are rejected so "0100" and "100" cannot
// canonicalize to different bytes for the same value.
func checkAmountString(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if strings.Trim(value, "0123456789") != "" {
		return fmt.Errorf("%s must be an integer string, got %q", field, value)
	}
	if len(value) > 1 && value[0] == '0' {
		return fmt.Errorf("%s must not have leading zeros, got %q", field, value)
	}
	if strings.Trim(value, "0") == "" {
		return fmt.Errorf("%s must be non-zero", field)
	}
	return nil
}

// NewSendMessage validates and builds one transfer instruction.
func NewSendMessage(from, to, denom, amount string) (Message, error) {
	if from == "" || to == "" {
		return Message{}, fmt.Errorf("from and to addresses cannot be empty")
	}
	if denom == "" {
		return Message{}, fmt.Errorf("denom cannot be empty")
	}
	if err := checkAmountString("amount", amount); err != nil {
		return Message{}, err
	}
	return Message{Type: MsgTypeSend, From: from, To: to, Denom: denom, Amount: amount}, nil
}

// NewTransaction validates and assembles an unsigned transaction.
func NewTransaction(chainID string, nonce uint64, msgs []Message, fee, memo string) (*Transaction, error) {
	if chainID == "" {
		return nil, fmt.Errorf("chain id cannot be empty")
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("transaction must contain at least one message")
	}
	for i, msg := range msgs {
		if msg.Type != MsgTypeSend {
			return nil, fmt.Errorf("message %d: unsupported type %q", i, msg.Type)
		}
		if msg.From == "" || msg.To == "" || msg.Denom == "" {
			return nil, fmt.Errorf("message %d: from, to, and denom are required", i)
		}
		if err := checkAmountString("amount", msg.Amount); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if err := checkAmountString("fee", fee); err != nil {
		return nil, err
	}
	return &Transaction{ChainID: chainID, Nonce: nonce, Msgs: msgs, Fee: fee, Memo: memo}, nil
}

// HashTransaction returns the transaction identifier:
// "0x" + hex(SHA3-256(canonical bytes)).
func HashTransaction(tx *Transaction) (string, error) {
	digest, err := canonicalDigest(tx)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(digest), nil
}

func canonicalDigest(tx *Transaction) ([]byte, error) {
	canonical, err := CanonicalJSON(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize transaction: %w", err)
	}
	digest := sha3.Sum256(canonical)
	return digest[:], nil
}

// SignTransaction signs the transaction's canonical digest and assembles the
// signed document. tx is not mutated. The caller owns secretKey and must
// zeroize it after this call returns.
func SignTransaction(provider SignatureProvider, tx *Transaction, secretKey, publicKey []byte) (*SignedTransaction, error) {
	digest, err := canonicalDigest(tx)
	if err != nil {
		return nil, err
	}
	signature, err := provider.Sign(secretKey, digest)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{
		Tx:           *tx,
		Algorithm:    AlgorithmMLDSA87,
		PublicKeyB64: base64.StdEncoding.EncodeToString(publicKey),
		SignatureB64: base64.StdEncoding.EncodeToString(signature),
		Hash:         "0x" + hex.EncodeToString(digest),
	}, nil
}

// VerifySignedTransaction recomputes the canonical digest and checks both the
// signature and the embedded hash. The hash check catches a tampered
// identifier even when the signature itself verifies.
func VerifySignedTransaction(provider SignatureProvider, signed *SignedTransaction) (bool, error) {
	publicKey, err := base64.StdEncoding.DecodeString(signed.PublicKeyB64)
	if err != nil {
		return false, fmt.Errorf("public key not base64: %w", err)
	}
	signature, err := base64.StdEncoding.DecodeString(signed.SignatureB64)
	if err != nil {
		return false, fmt.Errorf("signature not base64: %w", err)
	}
	digest, err := canonicalDigest(&signed.Tx)
	if err != nil {
		return false, err
	}
	if signed.Hash != "0x"+hex.EncodeToString(digest) {
		return false, nil
	}
	return provider.Verify(publicKey, digest, signature), nil
}
