package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// NodeClient speaks the narrow wallet-facing contract of a DGT node: account
// nonce lookup, chain id lookup, and signed-transaction submission. It
// classifies failures into retryable and non-retryable NetworkErrors; retry
// policy itself belongs to the caller.
type NodeClient struct {
	baseURL string
	http    *http.Client
}

func NewNodeClient(baseURL string, timeout time.Duration) *NodeClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &NodeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// nodeErrorBody is the machine-readable rejection shape the node returns on
// 4xx responses.
type nodeErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitResult is the node's answer to an accepted submission.
type SubmitResult struct {
	Status string `json:"status"`
	Hash   string `json:"hash"`
}

func (c *NodeClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection refusals are transport-level and worth
		// retrying; the node never saw the request or the answer was lost.
		return &NetworkError{Op: op, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &NetworkError{Op: op, Retryable: true, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &NetworkError{Op: op, Retryable: false,
				Err: fmt.Errorf("malformed response body: %w", err)}
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var nodeErr nodeErrorBody
		if err := json.Unmarshal(data, &nodeErr); err != nil || nodeErr.Code == "" {
			nodeErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return &NetworkError{Op: op, Code: nodeErr.Code, Retryable: false,
			Err: fmt.Errorf("node rejected request: %s", nodeErr.Message)}
	default:
		// 5xx: the node is unhealthy, not the request.
		return &NetworkError{Op: op, Retryable: true,
			Err: fmt.Errorf("node returned status %d", resp.StatusCode)}
	}
}

// AccountNonce fetches the account's current nonce from confirmed state. The
// caller signs with exactly this value; the node rejects reuse.
func (c *NodeClient) AccountNonce(ctx context.Context, address string) (uint64, error) {
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.do(ctx, "account_nonce", http.MethodGet, "/account/nonce/"+address, nil, &out); err != nil {
		return 0, err
	}
	return out.Nonce, nil
}

// ChainID fetches the network identifier from the node's status endpoint.
func (c *NodeClient) ChainID(ctx context.Context) (string, error) {
	var out struct {
		ChainID string `json:"chain_id"`
	}
	if err := c.do(ctx, "status", http.MethodGet, "/status", nil, &out); err != nil {
		return "", err
	}
	if out.ChainID == "" {
		return "", &NetworkError{Op: "status", Retryable: false,
			Err: fmt.Errorf("node status response missing chain_id")}
	}
	return out.ChainID, nil
}

// Submit broadcasts a signed transaction. When the node echoes back a hash it
// must match the locally computed identifier; a disagreement means the node
// canonicalized different bytes and is surfaced as ErrNodeHashMismatch rather
// than silently accepted.
func (c *NodeClient) Submit(ctx context.Context, signed *SignedTransaction) (*SubmitResult, error) {
	req := struct {
		SignedTx *SignedTransaction `json:"signed_tx"`
	}{SignedTx: signed}

	var result SubmitResult
	if err := c.do(ctx, "submit", http.MethodPost, "/submit", req, &result); err != nil {
		return nil, err
	}
	if result.Hash != "" && result.Hash != signed.Hash {
		return nil, fmt.Errorf("%w: local %s, node %s", ErrNodeHashMismatch, signed.Hash, result.Hash)
	}
	logger.Info().Str("hash", signed.Hash).Str("status", result.Status).Msg("transaction submitted")
	return &result, nil
}
