package nearrpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRPCServer fakes a JSON-RPC node. The handler returns the result JSON,
// or an error JSON to be placed in the response's error member.
func newRPCServer(t *testing.T, handle func(method string, params json.RawMessage) (result string, rpcErr string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var call struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &call))

		result, rpcErr := handle(call.Method, call.Params)
		w.Header().Set("Content-Type", "application/json")
		if rpcErr != "" {
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"dontcare","error":%s}`, rpcErr)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":"dontcare","result":%s}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// viewResult renders a view payload the way the node does: a JSON array of
// byte values.
func viewResult(payload string) string {
	ints := make([]int, len(payload))
	for i := 0; i < len(payload); i++ {
		ints[i] = int(payload[i])
	}
	b, _ := json.Marshal(map[string]interface{}{"result": ints, "logs": []string{}})
	return string(b)
}

func testClient(url string) *Client {
	return NewClient(url, nil, zerolog.Nop())
}

func TestViewFunction(t *testing.T) {
	srv := newRPCServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "query", method)

		var p struct {
			RequestType string `json:"request_type"`
			Finality    string `json:"finality"`
			AccountID   string `json:"account_id"`
			MethodName  string `json:"method_name"`
			ArgsBase64  string `json:"args_base64"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "call_function", p.RequestType)
		assert.Equal(t, "final", p.Finality)
		assert.Equal(t, "token.near", p.AccountID)
		assert.Equal(t, "ft_balance_of", p.MethodName)

		args, err := base64.StdEncoding.DecodeString(p.ArgsBase64)
		require.NoError(t, err)
		assert.JSONEq(t, `{"account_id":"alice.near"}`, string(args))

		return viewResult(`"12345"`), ""
	})

	c := testClient(srv.URL)
	raw, err := c.ViewFunction(context.Background(), "token.near", "ft_balance_of", map[string]string{"account_id": "alice.near"})
	require.NoError(t, err)
	assert.Equal(t, `"12345"`, string(raw))
}

func TestViewFunctionContractError(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return `{"error":"wasm execution failed with error: MethodNotFound","logs":[]}`, ""
	})

	c := testClient(srv.URL)
	_, err := c.ViewFunction(context.Background(), "token.near", "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view call failed")
}

func TestViewJSON(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return viewResult(`{"total":"1250000000000000000000000","available":"0"}`), ""
	})

	c := testClient(srv.URL)
	balance, err := c.StorageBalanceOf(context.Background(), "token.near", "alice.near")
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, "1250000000000000000000000", balance.Total)
}

func TestStorageBalanceOfUnregistered(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return viewResult(`null`), ""
	})

	c := testClient(srv.URL)
	balance, err := c.StorageBalanceOf(context.Background(), "token.near", "ghost.near")
	require.NoError(t, err)
	assert.Nil(t, balance)
}

func TestAccessKeyInfo(t *testing.T) {
	blockHash := make([]byte, 32)
	for i := range blockHash {
		blockHash[i] = byte(i + 1)
	}

	srv := newRPCServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "query", method)

		var p struct {
			RequestType string `json:"request_type"`
			AccountID   string `json:"account_id"`
			PublicKey   string `json:"public_key"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "view_access_key", p.RequestType)
		assert.Equal(t, "escrow.near", p.AccountID)
		assert.Contains(t, p.PublicKey, "ed25519:")

		return fmt.Sprintf(`{"nonce":42,"block_hash":%q,"permission":"FullAccess"}`, base58.Encode(blockHash)), ""
	})

	c := testClient(srv.URL)
	nonce, hash, err := c.AccessKeyInfo(context.Background(), "escrow.near", testPublicKey(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), nonce)
	assert.Equal(t, blockHash, hash[:])
}

func TestAccessKeyInfoUnknownKey(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return `{"error":"access key ed25519:abc does not exist while viewing","block_hash":"x","block_height":1}`, ""
	})

	c := testClient(srv.URL)
	_, _, err := c.AccessKeyInfo(context.Background(), "escrow.near", testPublicKey(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access key lookup failed")
}

func TestCallRPCErrorEnvelope(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return "", `{"code":-32000,"message":"Server error","data":"tx not found"}`
	})

	c := testClient(srv.URL)
	_, err := c.ViewFunction(context.Background(), "a.near", "m", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC error (code -32000)")
}

func TestCallNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv.URL)
	_, err := c.ViewFunction(context.Background(), "a.near", "m", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}
