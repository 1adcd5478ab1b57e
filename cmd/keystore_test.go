package cmd

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

// testSecret returns random bytes standing in for a secret key; the keystore
// layer treats key material as opaque.
func testSecret(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("failed to generate test bytes: %v", err)
	}
	return b
}

func TestKeystoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	secret := testSecret(t, 64)
	public := testSecret(t, 32)

	record, err := CreateKeystoreRecord("alice", secret, public, "correct horse", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if record.Address != DeriveAddress(public) {
		t.Errorf("record address %s does not match derived address", record.Address)
	}
	path, err := SaveKeystoreRecord(dir, record)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("keystore file missing: %v", err)
	}

	loaded, err := LoadKeystoreRecord(dir, "alice")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	recovered, err := DecryptKeystoreRecord(loaded, "correct horse")
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(recovered, secret) {
		t.Error("decrypted secret does not match original")
	}

	if _, err := DecryptKeystoreRecord(loaded, "wrong password"); !errors.Is(err, ErrDecryptionAuth) {
		t.Errorf("wrong passphrase: got %v, want ErrDecryptionAuth", err)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	record, err := CreateKeystoreRecord("bob", testSecret(t, 64), testSecret(t, 32), "longenough", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	ciphertext, _ := base64.StdEncoding.DecodeString(record.CiphertextB64)
	ciphertext[0] ^= 0x01
	record.CiphertextB64 = base64.StdEncoding.EncodeToString(ciphertext)

	if _, err := DecryptKeystoreRecord(record, "longenough"); !errors.Is(err, ErrDecryptionAuth) {
		t.Errorf("tampered ciphertext: got %v, want ErrDecryptionAuth", err)
	}
}

func TestCreateRejectsWeakPassphrase(t *testing.T) {
	_, err := CreateKeystoreRecord("carol", testSecret(t, 64), testSecret(t, 32), "short", AlgorithmMLDSA87)
	if !errors.Is(err, ErrWeakPassphrase) {
		t.Errorf("got %v, want ErrWeakPassphrase", err)
	}
}

func TestLoadRejectsEditedAddress(t *testing.T) {
	dir := t.TempDir()
	record, err := CreateKeystoreRecord("dave", testSecret(t, 64), testSecret(t, 32), "longenough", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	path, err := SaveKeystoreRecord(dir, record)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	other := DeriveAddress(testSecret(t, 32))
	raw["address"], _ = json.Marshal(other)
	edited, _ := json.Marshal(raw)
	if err := os.WriteFile(path, edited, 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := LoadKeystoreRecord(dir, "dave"); !errors.Is(err, ErrKeystoreParse) {
		t.Errorf("edited address: got %v, want ErrKeystoreParse", err)
	}
}

func TestSaveRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	record, err := CreateKeystoreRecord("erin", testSecret(t, 64), testSecret(t, 32), "longenough", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := SaveKeystoreRecord(dir, record); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := SaveKeystoreRecord(dir, record); err == nil {
		t.Error("second save of the same label should fail")
	}
}

func TestListAndFindByAddress(t *testing.T) {
	dir := t.TempDir()
	var addresses []string
	for _, label := range []string{"zeta", "alpha", "mid"} {
		record, err := CreateKeystoreRecord(label, testSecret(t, 64), testSecret(t, 32), "longenough", AlgorithmMLDSA87)
		if err != nil {
			t.Fatalf("create %s failed: %v", label, err)
		}
		if _, err := SaveKeystoreRecord(dir, record); err != nil {
			t.Fatalf("save %s failed: %v", label, err)
		}
		addresses = append(addresses, record.Address)
	}

	records, err := ListKeystoreRecords(dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if records[i].Label != want {
			t.Errorf("record %d: got label %s, want %s", i, records[i].Label, want)
		}
	}

	found, err := FindKeystoreByAddress(dir, addresses[1])
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if found.Label != "alpha" {
		t.Errorf("found wrong record: %s", found.Label)
	}

	missing := DeriveAddress(testSecret(t, 32))
	if _, err := FindKeystoreByAddress(dir, missing); !errors.Is(err, ErrKeystoreNotFound) {
		t.Errorf("got %v, want ErrKeystoreNotFound", err)
	}
}

func TestPassphraseRotation(t *testing.T) {
	dir := t.TempDir()
	secret := testSecret(t, 64)
	public := testSecret(t, 32)

	record, err := CreateKeystoreRecord("frank", secret, public, "old passphrase", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := SaveKeystoreRecord(dir, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	decrypted, err := DecryptKeystoreRecord(record, "old passphrase")
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	fresh, err := CreateKeystoreRecord("frank", decrypted, public, "new passphrase", AlgorithmMLDSA87)
	if err != nil {
		t.Fatalf("re-encrypt failed: %v", err)
	}
	if fresh.KDF.SaltB64 == record.KDF.SaltB64 {
		t.Error("rotation reused the KDF salt")
	}
	if fresh.Cipher.NonceB64 == record.Cipher.NonceB64 {
		t.Error("rotation reused the cipher nonce")
	}
	if err := ReplaceKeystoreRecord(dir, fresh); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	loaded, err := LoadKeystoreRecord(dir, "frank")
	if err != nil {
		t.Fatalf("load after rotation failed: %v", err)
	}
	if loaded.Address != record.Address {
		t.Error("rotation changed the address")
	}
	recovered, err := DecryptKeystoreRecord(loaded, "new passphrase")
	if err != nil {
		t.Fatalf("decrypt with new passphrase failed: %v", err)
	}
	if !bytes.Equal(recovered, secret) {
		t.Error("rotated record does not hold the original secret")
	}
	if _, err := DecryptKeystoreRecord(loaded, "old passphrase"); !errors.Is(err, ErrDecryptionAuth) {
		t.Errorf("old passphrase after rotation: got %v, want ErrDecryptionAuth", err)
	}
}
