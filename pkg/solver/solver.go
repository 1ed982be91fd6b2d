// Package solver is the client for the NEAR Intents solver-relay bus:
// quote discovery, intent publication and settlement tracking.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Default venue endpoints.
const (
	DefaultURL      = "https://solver-relay-v2.chaindefuser.com/rpc"
	DefaultContract = "intents.near"
)

// Terminal settlement conditions.
var (
	ErrIntentFailed      = errors.New("intent failed")
	ErrIntentNotFound    = errors.New("intent not found or not valid")
	ErrSettlementTimeout = errors.New("settlement timed out")
)

// rpcRequest is the bus's JSON-RPC envelope. Params are always a
// single-element array.
type rpcRequest struct {
	ID      int         `json:"id"`
	JSONRpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks to the solver-relay bus. The retry and polling knobs default
// to the venue's documented pacing; tests shrink them.
type Client struct {
	URL          string
	Contract     string // venue custody account, the NEP-413 recipient
	HTTPClient   *http.Client
	QuoteRetries int
	RetryDelay   time.Duration
	PollAttempts int
	PollInterval time.Duration
	Log          zerolog.Logger
}

// NewClient builds a bus client with default pacing. An empty url selects
// the public relay.
func NewClient(url string, logger zerolog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		URL:          url,
		Contract:     DefaultContract,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		QuoteRetries: 3,
		RetryDelay:   time.Second,
		PollAttempts: 30,
		PollInterval: time.Second,
		Log:          logger,
	}
}

// call posts one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		ID:      1,
		JSONRpc: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", method, resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("%s error: %s", method, envelope.Error.Message)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return fmt.Errorf("no result from %s", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// Quote is one solver's offer for an exact-input swap.
type Quote struct {
	AmountIn       string `json:"amount_in"`
	AmountOut      string `json:"amount_out"`
	ExpirationTime string `json:"expiration_time"`
	QuoteHash      string `json:"quote_hash"`
}

// QuoteRequest asks the bus for offers. Asset ids carry the venue prefix,
// amounts are decimal strings in the token's smallest unit.
type QuoteRequest struct {
	AssetIn       string
	AssetOut      string
	ExactAmountIn string
}

// BestQuote polls solvers for offers and picks the one with the highest
// amount_out. Up to QuoteRetries attempts with RetryDelay between them; an
// error, an empty book, or a missing result all count as failed attempts.
func (c *Client) BestQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	params := []map[string]string{{
		"defuse_asset_identifier_in":  req.AssetIn,
		"defuse_asset_identifier_out": req.AssetOut,
		"exact_amount_in":             req.ExactAmountIn,
	}}

	var lastErr error
	for attempt := 1; attempt <= c.QuoteRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
		}

		c.Log.Debug().Int("attempt", attempt).Int("max", c.QuoteRetries).Msg("requesting quote")

		var quotes []Quote
		if err := c.call(ctx, "quote", params, &quotes); err != nil {
			lastErr = err
			c.Log.Warn().Err(err).Int("attempt", attempt).Msg("quote attempt failed")
			continue
		}

		best := bestOf(quotes)
		if best == nil {
			lastErr = errors.New("no quotes returned")
			c.Log.Warn().Int("attempt", attempt).Msg("empty quote book")
			continue
		}

		c.Log.Info().
			Str("amount_in", best.AmountIn).
			Str("amount_out", best.AmountOut).
			Str("expires", best.ExpirationTime).
			Msg("quote received")
		return best, nil
	}

	return nil, fmt.Errorf("quote failed after %d attempts: %w", c.QuoteRetries, lastErr)
}

// bestOf returns the quote with the highest integer amount_out. Amounts
// that do not parse as non-negative integers rank as zero.
func bestOf(quotes []Quote) *Quote {
	var best *Quote
	var bestVal *big.Int
	for i := range quotes {
		val, ok := new(big.Int).SetString(quotes[i].AmountOut, 10)
		if !ok || val.Sign() < 0 {
			val = new(big.Int)
		}
		if best == nil || val.Cmp(bestVal) > 0 {
			best = &quotes[i]
			bestVal = val
		}
	}
	return best
}

// SignedData is the signed NEP-413 envelope the bus verifies.
type SignedData struct {
	Payload   Payload `json:"payload"`
	Standard  string  `json:"standard"`
	Signature string  `json:"signature"`
	PublicKey string  `json:"public_key"`
}

// Payload carries the signed message text and its anti-replay nonce.
type Payload struct {
	Message   string `json:"message"`
	Nonce     string `json:"nonce"`
	Recipient string `json:"recipient"`
}

// PublishIntent submits a signed intent, with the quote hashes it commits
// to when publishing a swap. The bus accepts it only with status OK; the
// returned hash identifies the intent for status polling.
func (c *Client) PublishIntent(ctx context.Context, signed SignedData, quoteHashes []string) (string, error) {
	param := map[string]interface{}{"signed_data": signed}
	if len(quoteHashes) > 0 {
		param["quote_hashes"] = quoteHashes
	}

	var result struct {
		Status     string `json:"status"`
		Reason     string `json:"reason"`
		IntentHash string `json:"intent_hash"`
	}
	if err := c.call(ctx, "publish_intent", []interface{}{param}, &result); err != nil {
		return "", err
	}

	c.Log.Info().Str("status", result.Status).Str("intent_hash", result.IntentHash).Msg("intent published")

	if result.Status != "OK" {
		if result.Reason != "" {
			return "", fmt.Errorf("intent publish failed with status %s: %s", result.Status, result.Reason)
		}
		return "", fmt.Errorf("intent publish failed with status %s", result.Status)
	}
	if result.IntentHash == "" {
		return "", errors.New("no intent hash returned")
	}
	return result.IntentHash, nil
}

// GetStatus returns the venue's current state for the intent.
func (c *Client) GetStatus(ctx context.Context, intentHash string) (string, error) {
	var result struct {
		Status string `json:"status"`
	}
	params := []map[string]string{{"intent_hash": intentHash}}
	if err := c.call(ctx, "get_status", params, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// WaitForSettlement polls get_status until the intent settles, reaches a
// terminal failure, or the attempt budget runs out. Poll errors count
// against the budget and polling continues.
func (c *Client) WaitForSettlement(ctx context.Context, intentHash string) error {
	for attempt := 0; attempt < c.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.PollInterval):
			}
		}

		status, err := c.GetStatus(ctx, intentHash)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn().Err(err).Int("attempt", attempt+1).Msg("get_status failed, retrying")
			continue
		}

		c.Log.Debug().Int("attempt", attempt+1).Str("status", status).Msg("intent status")

		switch status {
		case "SETTLED":
			return nil
		case "FAILED":
			return fmt.Errorf("%w: %s", ErrIntentFailed, intentHash)
		case "NOT_FOUND_OR_NOT_VALID", "NOT_FOUND_OR_NOT_VALID_ANYMORE":
			return fmt.Errorf("%w: %s", ErrIntentNotFound, intentHash)
		}
	}

	return fmt.Errorf("%w after %d attempts: %s", ErrSettlementTimeout, c.PollAttempts, intentHash)
}
