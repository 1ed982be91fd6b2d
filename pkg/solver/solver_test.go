package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBusServer fakes the solver-relay bus. The handler returns result JSON
// or error JSON for the RPC envelope.
func newBusServer(t *testing.T, handle func(method string, params json.RawMessage) (result string, rpcErr string)) *httptest.Server {
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
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"error":%s}`, rpcErr)
			return
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fastClient returns a client with zero delays for tests.
func fastClient(url string) *Client {
	c := NewClient(url, zerolog.Nop())
	c.RetryDelay = 0
	c.PollInterval = 0
	return c
}

func quoteJSON(hash, amountIn, amountOut string) string {
	return fmt.Sprintf(`{"quote_hash":%q,"amount_in":%q,"amount_out":%q,"expiration_time":"2026-01-01T00:00:00.000Z"}`, hash, amountIn, amountOut)
}

func TestBestQuoteSelectsHighestAmountOut(t *testing.T) {
	srv := newBusServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "quote", method)

		var p []struct {
			In     string `json:"defuse_asset_identifier_in"`
			Out    string `json:"defuse_asset_identifier_out"`
			Amount string `json:"exact_amount_in"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		require.Len(t, p, 1)
		assert.Equal(t, "nep141:usdt.near", p[0].In)
		assert.Equal(t, "nep141:usdc.near", p[0].Out)
		assert.Equal(t, "1000", p[0].Amount)

		return "[" +
			quoteJSON("h1", "1000", "100") + "," +
			quoteJSON("h2", "1000", "250") + "," +
			quoteJSON("h3", "1000", "abc") + "," +
			quoteJSON("h4", "1000", "250") +
			"]", ""
	})

	c := fastClient(srv.URL)
	quote, err := c.BestQuote(context.Background(), QuoteRequest{
		AssetIn:       "nep141:usdt.near",
		AssetOut:      "nep141:usdc.near",
		ExactAmountIn: "1000",
	})
	require.NoError(t, err)
	assert.Equal(t, "250", quote.AmountOut)
}

func TestBestQuoteUnparsableRanksAsZero(t *testing.T) {
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		return "[" + quoteJSON("h1", "10", "abc") + "," + quoteJSON("h2", "10", "1") + "]", ""
	})

	c := fastClient(srv.URL)
	quote, err := c.BestQuote(context.Background(), QuoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, "h2", quote.QuoteHash)
}

func TestBestQuoteRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		if calls.Add(1) < 3 {
			return "", `{"code":-32000,"message":"no solvers available"}`
		}
		return "[" + quoteJSON("h1", "10", "9") + "]", ""
	})

	c := fastClient(srv.URL)
	quote, err := c.BestQuote(context.Background(), QuoteRequest{})
	require.NoError(t, err)
	assert.Equal(t, "h1", quote.QuoteHash)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBestQuoteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		calls.Add(1)
		return "", `{"code":-32000,"message":"no solvers available"}`
	})

	c := fastClient(srv.URL)
	_, err := c.BestQuote(context.Background(), QuoteRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quote failed after 3 attempts")
	assert.Contains(t, err.Error(), "no solvers available")
	assert.Equal(t, int32(3), calls.Load())
}

func TestBestQuoteEmptyBookRetries(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		calls.Add(1)
		return "[]", ""
	})

	c := fastClient(srv.URL)
	_, err := c.BestQuote(context.Background(), QuoteRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no quotes returned")
	assert.Equal(t, int32(3), calls.Load())
}

func TestPublishIntentOK(t *testing.T) {
	srv := newBusServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "publish_intent", method)

		var p []struct {
			SignedData  SignedData `json:"signed_data"`
			QuoteHashes []string   `json:"quote_hashes"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		require.Len(t, p, 1)
		assert.Equal(t, "nep413", p[0].SignedData.Standard)
		assert.Equal(t, []string{"qh1"}, p[0].QuoteHashes)

		return `{"status":"OK","intent_hash":"ih123"}`, ""
	})

	c := fastClient(srv.URL)
	hash, err := c.PublishIntent(context.Background(), SignedData{Standard: "nep413"}, []string{"qh1"})
	require.NoError(t, err)
	assert.Equal(t, "ih123", hash)
}

func TestPublishIntentRejected(t *testing.T) {
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		return `{"status":"FAILED","reason":"signature invalid"}`, ""
	})

	c := fastClient(srv.URL)
	_, err := c.PublishIntent(context.Background(), SignedData{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent publish failed with status FAILED")
	assert.Contains(t, err.Error(), "signature invalid")
}

func TestPublishIntentMissingHash(t *testing.T) {
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		return `{"status":"OK"}`, ""
	})

	c := fastClient(srv.URL)
	_, err := c.PublishIntent(context.Background(), SignedData{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no intent hash returned")
}

func TestWaitForSettlementSettles(t *testing.T) {
	statuses := []string{"PENDING", "PENDING", "SETTLED"}
	var calls atomic.Int32

	srv := newBusServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "get_status", method)

		var p []struct {
			IntentHash string `json:"intent_hash"`
		}
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "ih123", p[0].IntentHash)

		n := calls.Add(1)
		return fmt.Sprintf(`{"status":%q}`, statuses[n-1]), ""
	})

	c := fastClient(srv.URL)
	err := c.WaitForSettlement(context.Background(), "ih123")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForSettlementTimesOut(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		calls.Add(1)
		return `{"status":"PENDING"}`, ""
	})

	c := fastClient(srv.URL)
	err := c.WaitForSettlement(context.Background(), "ih123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSettlementTimeout))
	assert.Equal(t, int32(30), calls.Load())
}

func TestWaitForSettlementFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		calls.Add(1)
		return `{"status":"FAILED"}`, ""
	})

	c := fastClient(srv.URL)
	err := c.WaitForSettlement(context.Background(), "ih123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntentFailed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitForSettlementNotFound(t *testing.T) {
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		return `{"status":"NOT_FOUND_OR_NOT_VALID"}`, ""
	})

	c := fastClient(srv.URL)
	err := c.WaitForSettlement(context.Background(), "ih123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIntentNotFound))
}

func TestWaitForSettlementRetriesPollErrors(t *testing.T) {
	var calls atomic.Int32
	srv := newBusServer(t, func(string, json.RawMessage) (string, string) {
		if calls.Add(1) == 1 {
			return "", `{"code":-32000,"message":"hiccup"}`
		}
		return `{"status":"SETTLED"}`, ""
	})

	c := fastClient(srv.URL)
	err := c.WaitForSettlement(context.Background(), "ih123")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
