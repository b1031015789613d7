package walletrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	client, err := NewClient(srv.URL, 5)
	require.NoError(t, err)
	return client, srv.Close
}

func TestNewClientRejectsNonLoopback(t *testing.T) {
	_, err := NewClient("http://example.com:18082", 5)
	assert.Error(t, err)
}

func TestNewClientAcceptsLoopback(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:18082", 5)
	assert.NoError(t, err)

	_, err = NewClient("http://localhost:18082", 5)
	assert.NoError(t, err)
}

func TestClientCallSuccess(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "x",
			"result":  map[string]interface{}{"height": 123},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	height, err := client.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), height)
}

func TestClientCallClassifiesAlreadyMultisig(t *testing.T) {
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "x",
			"error":   map[string]interface{}{"code": -1, "message": "wallet is already multisig"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	_, err := client.IsMultisig(context.Background())
	require.Error(t, err)
	failure, ok := err.(*RPCFailure)
	require.True(t, ok)
	assert.Equal(t, FailureAlreadyMultisig, failure.Kind)
}

func TestClientCallRetriesOnBusyThenSucceeds(t *testing.T) {
	attempts := 0
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			resp := map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      "x",
				"error":   map[string]interface{}{"code": -32000, "message": "wallet busy"},
			}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "x",
			"result":  map[string]interface{}{"height": 42},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	height, err := client.GetHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), height)
	assert.Equal(t, 2, attempts)
}

func TestClientCallDoesNotRetryNotMultisigFailure(t *testing.T) {
	attempts := 0
	client, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      "x",
			"error":   map[string]interface{}{"code": -2, "message": "not a multisig wallet"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	defer closeFn()

	_, err := client.IsMultisig(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
