// Package walletrpc is a typed JSON-RPC 2.0 client for a local
// threshold-signature wallet daemon, trimmed to the loopback-only,
// single-endpoint contract a signing wallet requires instead of a
// multi-chain HTTP provider.
package walletrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// FailureKind classifies why an RPC call did not succeed, so callers can
// decide whether to retry, fail the setup round, or mark the escrow failed.
type FailureKind string

const (
	FailureRPCUnreachable FailureKind = "rpc_unreachable"
	FailureAlreadyMultisig FailureKind = "already_multisig"
	FailureNotMultisig    FailureKind = "not_multisig"
	FailureWalletLocked   FailureKind = "wallet_locked"
	FailureWalletBusy     FailureKind = "wallet_busy"
	FailureValidation     FailureKind = "validation_error"
	FailureRPCError       FailureKind = "rpc_error"
)

// RPCFailure carries the classified failure alongside the raw message
// returned by the wallet daemon.
type RPCFailure struct {
	Kind    FailureKind
	Message string
}

func (f *RPCFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Retryable reports whether the failure is transient and worth retrying
// with backoff (unreachable, busy) versus a fixed classification the
// caller must act on (already_multisig, not_multisig, validation, locked).
func (f *RPCFailure) Retryable() bool {
	return f.Kind == FailureRPCUnreachable || f.Kind == FailureWalletBusy
}

const (
	maxRetries       = 3
	retryBaseDelay   = 100 * time.Millisecond
	defaultCallDeadline = 30 * time.Second
)

// Client is a single wallet daemon's RPC endpoint. callMu serializes the
// actual round trip so at most one request is ever in flight against the
// same wallet process, avoiding interleaved state-mutating RPCs; sem
// bounds how many goroutines may queue up waiting for that exclusive
// section, so the rest of the coordinator can't pile up unbounded
// blocked callers against a single slow wallet.
type Client struct {
	endpoint *url.URL
	http     *http.Client
	sem      chan struct{}
	callMu   sync.Mutex
	mu       sync.Mutex
	nextID   int
}

// NewClient validates that rpcURL resolves to loopback and returns a
// client admitting at most maxConcurrent callers (suggested: 5) past its
// semaphore: one holds the in-flight request slot, the rest wait for it.
func NewClient(rpcURL string, maxConcurrent int) (*Client, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return nil, coreerrors.Validation("malformed RPC URL %q: %v", rpcURL, err)
	}
	if err := requireLoopback(u); err != nil {
		return nil, err
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Client{
		endpoint: u,
		http:     &http.Client{Timeout: defaultCallDeadline},
		sem:      make(chan struct{}, maxConcurrent),
	}, nil
}

// requireLoopback rejects any RPC URL that does not resolve to the
// loopback interface, per the security contract: the coordinator never
// talks to a wallet daemon over a routable network.
func requireLoopback(u *url.URL) error {
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return coreerrors.Security("RPC URL %q does not resolve to loopback", u.String())
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (c *Client) nextRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return fmt.Sprintf("xmrescrow-%d", c.nextID)
}

// call performs one JSON-RPC round trip with classification but no retry
// and no per-endpoint serialization; Call adds the concurrency semaphore,
// serialization and retry.
func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextRequestID(), Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return coreerrors.Validation("failed to encode RPC request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return &RPCFailure{Kind: FailureRPCUnreachable, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &RPCFailure{Kind: FailureRPCUnreachable, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RPCFailure{Kind: FailureRPCUnreachable, Message: err.Error()}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return &RPCFailure{Kind: FailureRPCError, Message: fmt.Sprintf("malformed RPC response: %v", err)}
	}

	if rpcResp.Error != nil {
		return classifyRPCError(rpcResp.Error)
	}

	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &RPCFailure{Kind: FailureRPCError, Message: fmt.Sprintf("failed to decode result: %v", err)}
		}
	}
	return nil
}

// classifyRPCError maps the wallet daemon's error message onto a
// FailureKind. Exact message text varies by wallet-RPC implementation, so
// this matches on well-known substrings rather than a typed error code.
func classifyRPCError(e *rpcError) *RPCFailure {
	switch {
	case containsAny(e.Message, "already multisig", "already a multisig"):
		return &RPCFailure{Kind: FailureAlreadyMultisig, Message: e.Message}
	case containsAny(e.Message, "not multisig", "not a multisig wallet"):
		return &RPCFailure{Kind: FailureNotMultisig, Message: e.Message}
	case containsAny(e.Message, "wallet locked", "is locked"):
		return &RPCFailure{Kind: FailureWalletLocked, Message: e.Message}
	case containsAny(e.Message, "wallet busy", "already processing"):
		return &RPCFailure{Kind: FailureWalletBusy, Message: e.Message}
	case e.Code <= -32000 && e.Code >= -32099:
		return &RPCFailure{Kind: FailureWalletBusy, Message: e.Message}
	default:
		return &RPCFailure{Kind: FailureRPCError, Message: e.Message}
	}
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Call performs an RPC with per-endpoint serialization, bounded
// concurrency, and retry with exponential backoff for transient failures.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := c.call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		lastErr = err
		failure, ok := err.(*RPCFailure)
		if !ok || !failure.Retryable() {
			return err
		}
		if attempt < maxRetries-1 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
