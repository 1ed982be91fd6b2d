package nearrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcomeJSON builds a broadcast_tx_commit result with the given pieces.
func outcomeJSON(status, txHash, txOutcomeStatus string, receipts ...string) string {
	return fmt.Sprintf(`{
		"status": %s,
		"transaction": {"hash": %q},
		"transaction_outcome": {"id": "tx1", "outcome": {"logs": [], "status": %s}},
		"receipts_outcome": [%s]
	}`, status, txHash, txOutcomeStatus, joinReceipts(receipts))
}

func joinReceipts(receipts []string) string {
	out := ""
	for i, r := range receipts {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}

func receiptJSON(id, status string, logs ...string) string {
	l, _ := json.Marshal(logs)
	return fmt.Sprintf(`{"id": %q, "outcome": {"logs": %s, "status": %s}}`, id, l, status)
}

const statusOK = `{"SuccessValue": ""}`

func TestBroadcastTxCommitSuccess(t *testing.T) {
	srv := newRPCServer(t, func(method string, params json.RawMessage) (string, string) {
		require.Equal(t, "broadcast_tx_commit", method)

		var p []string
		require.NoError(t, json.Unmarshal(params, &p))
		require.Len(t, p, 1)
		assert.NotEmpty(t, p[0])

		return outcomeJSON(statusOK, "9got2exfJS3Yo", statusOK,
			receiptJSON("r1", `{"SuccessReceiptId": "r2"}`, "Transfer 100 from a to b"),
			receiptJSON("r2", statusOK, "swap ok"),
		), ""
	})

	c := testClient(srv.URL)
	res, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "9got2exfJS3Yo", res.Hash)
	assert.Equal(t, []string{"Transfer 100 from a to b", "swap ok"}, res.Logs)
}

func TestBroadcastTxCommitTopLevelFailure(t *testing.T) {
	failure := `{"Failure": {"ActionError": {"index": 0, "kind": {"FunctionCallError": {"ExecutionError": "Smart contract panicked: Token in not whitelisted"}}}}}`

	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return outcomeJSON(failure, "hash1", statusOK), ""
	})

	c := testClient(srv.URL)
	_, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction failed")
	assert.Contains(t, err.Error(), "action 0")
	assert.Contains(t, err.Error(), "Smart contract panicked: Token in not whitelisted")
}

func TestBroadcastTxCommitTransactionOutcomeFailure(t *testing.T) {
	failure := `{"Failure": {"InvalidTxError": {"InvalidNonce": {"tx_nonce": 1, "ak_nonce": 5}}}}`

	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return outcomeJSON(statusOK, "hash2", failure), ""
	})

	c := testClient(srv.URL)
	_, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction outcome failed")
	assert.Contains(t, err.Error(), "Invalid transaction")
}

func TestBroadcastTxCommitReceiptFailure(t *testing.T) {
	failure := `{"Failure": {"ActionError": {"index": 0, "kind": {"FunctionCallError": {"ExecutionError": "Smart contract panicked: The account doesn't have enough balance"}}}}}`

	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return outcomeJSON(statusOK, "hash3", statusOK,
			receiptJSON("r1", statusOK),
			receiptJSON("r2", failure, "refund log line"),
		), ""
	})

	c := testClient(srv.URL)
	_, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "receipt 1 failed")
	assert.Contains(t, err.Error(), "enough balance")
}

func TestBroadcastTxCommitNotFinalized(t *testing.T) {
	for _, tc := range []struct {
		status string
		want   string
	}{
		{`"NotStarted"`, "transaction not started"},
		{`"Started"`, "transaction still in progress"},
	} {
		srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
			return outcomeJSON(tc.status, "hash4", statusOK), ""
		})

		c := testClient(srv.URL)
		_, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
		require.Error(t, err)
		assert.Contains(t, err.Error(), tc.want)
	}
}

func TestBroadcastTxCommitMissingHash(t *testing.T) {
	srv := newRPCServer(t, func(string, json.RawMessage) (string, string) {
		return `{"status": {"SuccessValue": ""}, "transaction": {}, "transaction_outcome": {"id":"x","outcome":{"logs":[],"status":{"SuccessValue":""}}}, "receipts_outcome": []}`, ""
	})

	c := testClient(srv.URL)
	_, err := c.BroadcastTxCommit(context.Background(), "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no transaction hash")
}

func TestFormatFailureFallback(t *testing.T) {
	// Shapes the client does not model come back verbatim.
	raw := json.RawMessage(`{"SomethingNew": {"detail": 1}}`)
	assert.Equal(t, string(raw), formatFailure(raw))

	// An action error with an unmodeled kind keeps the index prefix.
	raw = json.RawMessage(`{"ActionError": {"index": 2, "kind": {"AccountDoesNotExist": {"account_id": "x.near"}}}}`)
	got := formatFailure(raw)
	assert.Contains(t, got, "action 2")
	assert.Contains(t, got, "AccountDoesNotExist")
}
