// Package nearrpc talks to a NEAR JSON-RPC node: read-only contract views,
// access-key lookups, and transaction broadcast with full interpretation of
// the execution outcome.
package nearrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"intent-swap/pkg/neartx"
)

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// Client is a minimal NEAR JSON-RPC client.
type Client struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewClient creates a client for the given RPC endpoint. A nil httpClient
// gets a 30 second timeout.
func NewClient(url string, httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, client: httpClient, log: logger}
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// call makes a JSON-RPC call and returns the raw result.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRpc: "2.0",
		ID:      "dontcare",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("RPC request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RPC returned status %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error (code %d): %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

// ViewFunction executes a read-only contract call and returns the raw bytes
// the method produced. Args are JSON-encoded and passed as args_base64
// against the latest final block.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args interface{}) ([]byte, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	c.log.Debug().Str("contract", contractID).Str("method", method).Msg("view call")

	result, err := c.call(ctx, "query", map[string]interface{}{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	})
	if err != nil {
		return nil, err
	}

	// The node returns the method's output as an array of byte values.
	var view struct {
		Result []int  `json:"result"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(result, &view); err != nil {
		return nil, fmt.Errorf("failed to parse view result: %w", err)
	}
	if view.Error != "" {
		return nil, fmt.Errorf("view call failed: %s", view.Error)
	}
	if view.Result == nil {
		return nil, fmt.Errorf("no result in response")
	}

	out := make([]byte, len(view.Result))
	for i, v := range view.Result {
		out[i] = byte(v)
	}
	return out, nil
}

// ViewJSON executes a view call and decodes its JSON return value into out.
func (c *Client) ViewJSON(ctx context.Context, contractID, method string, args, out interface{}) error {
	raw, err := c.ViewFunction(ctx, contractID, method, args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// StorageBalance is the NEP-145 registration record a token contract keeps
// per account.
type StorageBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

// StorageBalanceOf returns the account's storage registration on the token
// contract, or nil when the account is not registered.
func (c *Client) StorageBalanceOf(ctx context.Context, tokenContract, accountID string) (*StorageBalance, error) {
	var balance *StorageBalance
	args := map[string]string{"account_id": accountID}
	if err := c.ViewJSON(ctx, tokenContract, "storage_balance_of", args, &balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// AccessKeyInfo fetches the current nonce and a recent block hash for the
// account's access key. Both are needed to build the next transaction.
func (c *Client) AccessKeyInfo(ctx context.Context, accountID string, publicKey neartx.PublicKey) (uint64, [32]byte, error) {
	var blockHash [32]byte

	result, err := c.call(ctx, "query", map[string]interface{}{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey.String(),
	})
	if err != nil {
		return 0, blockHash, err
	}

	var info struct {
		Nonce     uint64 `json:"nonce"`
		BlockHash string `json:"block_hash"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(result, &info); err != nil {
		return 0, blockHash, fmt.Errorf("failed to parse access key info: %w", err)
	}
	if info.Error != "" {
		return 0, blockHash, fmt.Errorf("access key lookup failed: %s", info.Error)
	}
	if info.BlockHash == "" {
		return 0, blockHash, fmt.Errorf("no block hash in access key info")
	}

	blockHash, err = neartx.DecodeBlockHash(info.BlockHash)
	if err != nil {
		return 0, blockHash, err
	}
	return info.Nonce, blockHash, nil
}
