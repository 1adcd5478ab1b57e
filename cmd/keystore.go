package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	DefaultWalletDir = ".dgtwallet"
	KeystoreFileExt  = ".keystore"

	KDFAlgorithmArgon2id = "argon2id"
	CipherXChaCha20      = "xchacha20poly1305"

	kdfSaltLen       = 16
	derivedKeyLen    = 32
	defaultMemoryKiB = 19456
	defaultTimeCost  = 2
	defaultParallel  = 1
)

// KDFParams records how the symmetric key was stretched from the passphrase.
// The decrypt path always uses the stored parameters, never the defaults.
type KDFParams struct {
	Algorithm   string `json:"algorithm"`
	SaltB64     string `json:"salt_b64"`
	MemoryKiB   uint32 `json:"m_cost"`
	TimeCost    uint32 `json:"t_cost"`
	Parallelism uint8  `json:"parallelism"`
}

type CipherParams struct {
	Algorithm string `json:"algorithm"`
	NonceB64  string `json:"nonce_b64"`
}

// KeystoreRecord is the persisted form of one protected key, one file per
// label. Only the secret key is encrypted; everything else is readable
// without the passphrase so lookups never touch key material.
type KeystoreRecord struct {
	Label         string       `json:"label"`
	Algorithm     string       `json:"algorithm"`
	PublicKeyB64  string       `json:"public_key_b64"`
	Address       string       `json:"address"`
	KDF           KDFParams    `json:"kdf"`
	Cipher        CipherParams `json:"cipher"`
	CiphertextB64 string       `json:"ciphertext_b64"`
	CreatedAt     time.Time    `json:"created_at"`
}

// PublicKey decodes the stored public key bytes.
func (r *KeystoreRecord) PublicKey() ([]byte, error) {
	pk, err := base64.StdEncoding.DecodeString(r.PublicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: public key not base64", ErrKeystoreParse)
	}
	return pk, nil
}

func defaultKDFParams(salt []byte) KDFParams {
	return KDFParams{
		Algorithm:   KDFAlgorithmArgon2id,
		SaltB64:     base64.StdEncoding.EncodeToString(salt),
		MemoryKiB:   defaultMemoryKiB,
		TimeCost:    defaultTimeCost,
		Parallelism: defaultParallel,
	}
}

func deriveKey(passphrase string, salt []byte, kdf KDFParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt,
		kdf.TimeCost, kdf.MemoryKiB, kdf.Parallelism, derivedKeyLen)
}

// CreateKeystoreRecord encrypts secretKey under passphrase with a fresh salt
// and nonce, and derives the record's address from publicKey. The caller
// retains ownership of secretKey and must zeroize it.
func CreateKeystoreRecord(label string, secretKey, publicKey []byte, passphrase, algorithm string) (*KeystoreRecord, error) {
	if label == "" {
		return nil, fmt.Errorf("label cannot be empty")
	}
	if err := checkPassphraseStrength(passphrase); err != nil {
		return nil, err
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	kdf := defaultKDFParams(salt)
	key := deriveKey(passphrase, salt, kdf)
	defer zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, secretKey, nil)

	record := &KeystoreRecord{
		Label:        label,
		Algorithm:    algorithm,
		PublicKeyB64: base64.StdEncoding.EncodeToString(publicKey),
		Address:      DeriveAddress(publicKey),
		KDF:          kdf,
		Cipher: CipherParams{
			Algorithm: CipherXChaCha20,
			NonceB64:  base64.StdEncoding.EncodeToString(nonce),
		},
		CiphertextB64: base64.StdEncoding.EncodeToString(ciphertext),
		CreatedAt:     time.Now().UTC(),
	}

	logger.Info().Str("label", label).Str("address", record.Address).Msg("keystore record created")
	return record, nil
}

// DecryptKeystoreRecord recovers the secret key bytes. The only observable
// failure mode for a bad passphrase or tampered ciphertext is
// ErrDecryptionAuth. The caller must zeroize the returned slice.
func DecryptKeystoreRecord(record *KeystoreRecord, passphrase string) ([]byte, error) {
	if record.KDF.Algorithm != KDFAlgorithmArgon2id {
		return nil, fmt.Errorf("%w: unsupported kdf %q", ErrKeystoreParse, record.KDF.Algorithm)
	}
	if record.Cipher.Algorithm != CipherXChaCha20 {
		return nil, fmt.Errorf("%w: unsupported cipher %q", ErrKeystoreParse, record.Cipher.Algorithm)
	}
	salt, err := base64.StdEncoding.DecodeString(record.KDF.SaltB64)
	if err != nil {
		return nil, fmt.Errorf("%w: salt not base64", ErrKeystoreParse)
	}
	nonce, err := base64.StdEncoding.DecodeString(record.Cipher.NonceB64)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: bad cipher nonce", ErrKeystoreParse)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(record.CiphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext not base64", ErrKeystoreParse)
	}

	key := deriveKey(passphrase, salt, record.KDF)
	defer zeroize(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	secretKey, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionAuth
	}
	return secretKey, nil
}

func keystorePath(dir, label string) string {
	return filepath.Join(dir, label+KeystoreFileExt)
}

func ensureKeystoreDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}

// SaveKeystoreRecord writes a new record file. Refuses to overwrite an
// existing label: records are never mutated in place.
func SaveKeystoreRecord(dir string, record *KeystoreRecord) (string, error) {
	if err := ensureKeystoreDir(dir); err != nil {
		return "", fmt.Errorf("failed to create keystore directory: %w", err)
	}
	path := keystorePath(dir, record.Label)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("keystore record %q already exists", record.Label)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal keystore record: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write keystore record: %w", err)
	}
	return path, nil
}

// ReplaceKeystoreRecord atomically swaps the file for an existing label.
// Used by passphrase rotation: the new record is written to a temp file and
// renamed over the old one, so a crash never leaves a half-written record.
func ReplaceKeystoreRecord(dir string, record *KeystoreRecord) error {
	path := keystorePath(dir, record.Label)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("keystore record %q does not exist: %w", record.Label, err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace keystore record: %w", err)
	}
	return nil
}

// LoadKeystoreRecord reads and validates one record. The address is
// recomputed from the stored public key; a mismatch means the file was
// hand-edited or corrupted and fails the load.
func LoadKeystoreRecord(dir, label string) (*KeystoreRecord, error) {
	data, err := os.ReadFile(keystorePath(dir, label))
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore record %q: %w", label, err)
	}
	var record KeystoreRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeystoreParse, err)
	}
	if record.Label != label {
		return nil, fmt.Errorf("%w: label %q does not match file", ErrKeystoreParse, record.Label)
	}
	pk, err := record.PublicKey()
	if err != nil {
		return nil, err
	}
	if derived := DeriveAddress(pk); derived != record.Address {
		return nil, fmt.Errorf("%w: stored address does not match public key", ErrKeystoreParse)
	}
	return &record, nil
}

// ListKeystoreRecords returns the public fields of every record in the
// directory, sorted by label. Records that fail to parse are skipped with a
// warning rather than aborting the listing.
func ListKeystoreRecords(dir string) ([]KeystoreRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read keystore directory: %w", err)
	}

	var records []KeystoreRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), KeystoreFileExt) {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), KeystoreFileExt)
		record, err := LoadKeystoreRecord(dir, label)
		if err != nil {
			logger.Warn().Str("label", label).Err(err).Msg("skipping unreadable keystore record")
			continue
		}
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Label < records[j].Label
	})
	return records, nil
}

// FindKeystoreByAddress scans the directory for a record whose derived
// address matches. Only public fields are decoded; no decryption happens.
func FindKeystoreByAddress(dir, address string) (*KeystoreRecord, error) {
	records, err := ListKeystoreRecords(dir)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Address == address {
			return &records[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s (pass an explicit keystore label instead)", ErrKeystoreNotFound, address)
}
