package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestNode(t *testing.T) (*DevNode, *NodeClient, func()) {
	t.Helper()
	node := NewDevNode("test-1", NewNativeProvider())
	server := httptest.NewServer(node.Router())
	client := NewNodeClient(server.URL, 5*time.Second)
	return node, client, server.Close
}

func signedTransfer(t *testing.T, sk, pk []byte, nonce uint64) *SignedTransaction {
	t.Helper()
	from := DeriveAddress(pk)
	to := DeriveAddress([]byte("recipient key material"))
	msg, err := NewSendMessage(from, to, "udgt", "1000")
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	tx, err := NewTransaction("test-1", nonce, []Message{msg}, "100", "")
	if err != nil {
		t.Fatalf("failed to build transaction: %v", err)
	}
	signed, err := SignTransaction(NewNativeProvider(), tx, sk, pk)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return signed
}

func TestNodeStatusAndNonce(t *testing.T) {
	_, client, done := newTestNode(t)
	defer done()
	ctx := context.Background()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if chainID != "test-1" {
		t.Errorf("got chain id %s", chainID)
	}

	addr := DeriveAddress([]byte("fresh account"))
	nonce, err := client.AccountNonce(ctx, addr)
	if err != nil {
		t.Fatalf("nonce lookup failed: %v", err)
	}
	if nonce != 0 {
		t.Errorf("fresh account nonce = %d, want 0", nonce)
	}

	_, err = client.AccountNonce(ctx, "not-an-address")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if netErr.Retryable || netErr.Code != "bad_address" {
		t.Errorf("got code %q retryable %v", netErr.Code, netErr.Retryable)
	}
}

func TestSubmitAndNonceReplay(t *testing.T) {
	_, client, done := newTestNode(t)
	defer done()
	ctx := context.Background()
	sk, pk := testKeyPair(t)
	from := DeriveAddress(pk)

	signed := signedTransfer(t, sk, pk, 0)
	result, err := client.Submit(ctx, signed)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Status != "accepted" {
		t.Errorf("got status %s", result.Status)
	}
	if result.Hash != signed.Hash {
		t.Errorf("node hash %s differs from local %s", result.Hash, signed.Hash)
	}

	nonce, err := client.AccountNonce(ctx, from)
	if err != nil {
		t.Fatalf("nonce lookup failed: %v", err)
	}
	if nonce != 1 {
		t.Errorf("nonce after accept = %d, want 1", nonce)
	}

	// Replaying the same signed transaction must be rejected with a
	// machine-readable, non-retryable code.
	_, err = client.Submit(ctx, signed)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if netErr.Retryable || netErr.Code != "bad_nonce" {
		t.Errorf("got code %q retryable %v", netErr.Code, netErr.Retryable)
	}
}

func TestSubmitRejectsTamperedSignature(t *testing.T) {
	_, client, done := newTestNode(t)
	defer done()
	sk, pk := testKeyPair(t)

	signed := signedTransfer(t, sk, pk, 0)
	signed.Tx.Msgs[0].Amount = "2000"
	_, err := client.Submit(context.Background(), signed)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if netErr.Code != "signature_invalid" {
		t.Errorf("got code %q", netErr.Code)
	}
}

func TestSubmitRejectsWrongChain(t *testing.T) {
	node := NewDevNode("other-chain", NewNativeProvider())
	server := httptest.NewServer(node.Router())
	defer server.Close()
	client := NewNodeClient(server.URL, 5*time.Second)
	sk, pk := testKeyPair(t)

	signed := signedTransfer(t, sk, pk, 0)
	_, err := client.Submit(context.Background(), signed)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if netErr.Code != "bad_chain_id" {
		t.Errorf("got code %q", netErr.Code)
	}
}

func TestSubmitSurfacesNodeHashMismatch(t *testing.T) {
	// A node that canonicalizes different bytes assigns a different hash;
	// that must surface as a protocol error, never silent acceptance.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SubmitResult{Status: "accepted", Hash: "0xdeadbeef"})
	}))
	defer server.Close()
	client := NewNodeClient(server.URL, 5*time.Second)
	sk, pk := testKeyPair(t)

	_, err := client.Submit(context.Background(), signedTransfer(t, sk, pk, 0))
	if !errors.Is(err, ErrNodeHashMismatch) {
		t.Errorf("got %v, want ErrNodeHashMismatch", err)
	}
}

func TestConnectionFailureIsRetryable(t *testing.T) {
	_, client, done := newTestNode(t)
	done() // server already gone

	_, err := client.ChainID(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if !netErr.Retryable {
		t.Error("connection failure should be retryable")
	}
}

func TestServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()
	client := NewNodeClient(server.URL, 5*time.Second)

	_, err := client.AccountNonce(context.Background(), DeriveAddress([]byte("k")))
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if !netErr.Retryable {
		t.Error("5xx should be retryable")
	}
}

func TestTimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()
	client := NewNodeClient(server.URL, 50*time.Millisecond)

	_, err := client.ChainID(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got %v, want NetworkError", err)
	}
	if !netErr.Retryable {
		t.Error("timeout should be retryable")
	}
}
