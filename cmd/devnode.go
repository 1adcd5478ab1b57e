package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

// DevNode is a minimal in-memory node for local development: it keeps
// per-account nonces, verifies submitted signatures, and enforces the same
// nonce-replay rule a real node would. It implements exactly the three
// endpoints the wallet consumes, nothing more.
type DevNode struct {
	chainID  string
	provider SignatureProvider

	mu       sync.Mutex
	nonces   map[string]uint64
	accepted map[string]SignedTransaction
}

func NewDevNode(chainID string, provider SignatureProvider) *DevNode {
	return &DevNode{
		chainID:  chainID,
		provider: provider,
		nonces:   map[string]uint64{},
		accepted: map[string]SignedTransaction{},
	}
}

// Router builds the HTTP surface. Exposed separately from ListenAndServe so
// tests can mount it on an httptest server.
func (n *DevNode) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/account/nonce/{address}", n.handleNonce).Methods(http.MethodGet)
	r.HandleFunc("/status", n.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/submit", n.handleSubmit).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeNodeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, nodeErrorBody{Code: code, Message: message})
}

func (n *DevNode) handleNonce(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !IsValidAddress(address) {
		writeNodeError(w, http.StatusBadRequest, "bad_address", "malformed address")
		return
	}
	n.mu.Lock()
	nonce := n.nonces[address]
	n.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]uint64{"nonce": nonce})
}

func (n *DevNode) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"chain_id": n.chainID})
}

func (n *DevNode) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SignedTx *SignedTransaction `json:"signed_tx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SignedTx == nil {
		writeNodeError(w, http.StatusBadRequest, "malformed_tx", "could not decode signed_tx")
		return
	}
	signed := req.SignedTx

	if signed.Tx.ChainID != n.chainID {
		writeNodeError(w, http.StatusBadRequest, "bad_chain_id",
			fmt.Sprintf("expected chain %s", n.chainID))
		return
	}
	ok, err := VerifySignedTransaction(n.provider, signed)
	if err != nil || !ok {
		writeNodeError(w, http.StatusBadRequest, "signature_invalid", "signature verification failed")
		return
	}
	if len(signed.Tx.Msgs) == 0 {
		writeNodeError(w, http.StatusBadRequest, "malformed_tx", "no messages")
		return
	}
	sender := signed.Tx.Msgs[0].From

	n.mu.Lock()
	defer n.mu.Unlock()
	if signed.Tx.Nonce != n.nonces[sender] {
		writeNodeError(w, http.StatusBadRequest, "bad_nonce",
			fmt.Sprintf("expected nonce %d", n.nonces[sender]))
		return
	}
	n.nonces[sender]++
	n.accepted[signed.Hash] = *signed
	writeJSON(w, http.StatusOK, SubmitResult{Status: "accepted", Hash: signed.Hash})
}

var devnodeListen string

var devnodeCmd = &cobra.Command{
	Use:   "devnode",
	Short: "Run a minimal in-memory node for local development",
	Long: `Runs an in-memory node implementing the wallet-facing endpoints
(account nonce, status, submit). State lives only in process memory; signatures
and nonces are verified the way a real node verifies them.`,
	Run: func(cmd *cobra.Command, args []string) {
		node := NewDevNode(resolveChainIDOffline(), NewNativeProvider())
		fmt.Printf("devnode listening on %s (chain %s)\n", devnodeListen, node.chainID)
		if err := http.ListenAndServe(devnodeListen, node.Router()); err != nil {
			fmt.Printf("devnode failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	devnodeCmd.Flags().StringVar(&devnodeListen, "listen", "127.0.0.1:26657", "Listen address")
	rootCmd.AddCommand(devnodeCmd)
}
