package nearrpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExecutionStatus is the status of one outcome level. On the wire it is
// either a bare JSON string (NotStarted, Started) or an object keyed by
// SuccessValue, SuccessReceiptId or Failure.
type ExecutionStatus struct {
	Enum             string
	SuccessValue     *string
	SuccessReceiptID *string
	Failure          json.RawMessage
}

// UnmarshalJSON accepts both wire forms.
func (s *ExecutionStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &s.Enum)
	}

	var obj struct {
		SuccessValue     *string         `json:"SuccessValue"`
		SuccessReceiptID *string         `json:"SuccessReceiptId"`
		Failure          json.RawMessage `json:"Failure"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	s.SuccessValue = obj.SuccessValue
	s.SuccessReceiptID = obj.SuccessReceiptID
	s.Failure = obj.Failure
	return nil
}

// ExecutionOutcome is the outcome of the transaction itself or of one
// receipt it spawned.
type ExecutionOutcome struct {
	Logs   []string        `json:"logs"`
	Status ExecutionStatus `json:"status"`
}

// OutcomeWithID pairs an outcome with its transaction or receipt id.
type OutcomeWithID struct {
	ID      string           `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

// FinalExecutionOutcome is the result shape of broadcast_tx_commit.
type FinalExecutionOutcome struct {
	Status      ExecutionStatus `json:"status"`
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
	TransactionOutcome OutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome    []OutcomeWithID `json:"receipts_outcome"`
}

// TxResult is a transaction that finalized with every outcome level
// successful.
type TxResult struct {
	Hash string
	Logs []string
}

// BroadcastTxCommit submits a base64 signed transaction and waits for
// finality, then walks every outcome level for failures: the top-level
// status first, then the transaction outcome, then each receipt in order.
// A failure at any level is terminal even when the top level reports
// success, because receipts of a cross-contract call settle independently.
func (c *Client) BroadcastTxCommit(ctx context.Context, signedTxBase64 string) (*TxResult, error) {
	result, err := c.call(ctx, "broadcast_tx_commit", []string{signedTxBase64})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no result in response")
	}

	var outcome FinalExecutionOutcome
	if err := json.Unmarshal(result, &outcome); err != nil {
		return nil, fmt.Errorf("failed to parse execution outcome: %w", err)
	}
	if outcome.Transaction.Hash == "" {
		return nil, fmt.Errorf("no transaction hash in response")
	}

	c.log.Debug().Str("tx", outcome.Transaction.Hash).Msg("transaction broadcast")

	switch {
	case outcome.Status.Failure != nil:
		return nil, fmt.Errorf("transaction failed: %s", formatFailure(outcome.Status.Failure))
	case outcome.Status.Enum == "NotStarted":
		return nil, fmt.Errorf("transaction not started")
	case outcome.Status.Enum == "Started":
		return nil, fmt.Errorf("transaction still in progress")
	}

	if f := outcome.TransactionOutcome.Outcome.Status.Failure; f != nil {
		return nil, fmt.Errorf("transaction outcome failed: %s", formatFailure(f))
	}

	var logs []string
	for i, receipt := range outcome.ReceiptsOutcome {
		if f := receipt.Outcome.Status.Failure; f != nil {
			for _, line := range receipt.Outcome.Logs {
				c.log.Debug().Int("receipt", i).Str("log", line).Msg("failed receipt log")
			}
			return nil, fmt.Errorf("receipt %d failed: %s", i, formatFailure(f))
		}
		logs = append(logs, receipt.Outcome.Logs...)
	}

	return &TxResult{Hash: outcome.Transaction.Hash, Logs: logs}, nil
}

// formatFailure renders a Failure payload the way operators read it: the
// failing action index when known, then the contract panic text, falling
// back to the raw JSON for shapes this client does not model.
func formatFailure(raw json.RawMessage) string {
	var failure struct {
		ActionError *struct {
			Index *uint64         `json:"index"`
			Kind  json.RawMessage `json:"kind"`
		} `json:"ActionError"`
		InvalidTxError json.RawMessage `json:"InvalidTxError"`
	}
	if err := json.Unmarshal(raw, &failure); err != nil {
		return string(raw)
	}

	if failure.InvalidTxError != nil {
		return fmt.Sprintf("Invalid transaction: %s", failure.InvalidTxError)
	}
	if failure.ActionError == nil {
		return string(raw)
	}

	prefix := ""
	if failure.ActionError.Index != nil {
		prefix = fmt.Sprintf("action %d: ", *failure.ActionError.Index)
	}

	var kind struct {
		FunctionCallError *struct {
			ExecutionError *string `json:"ExecutionError"`
		} `json:"FunctionCallError"`
	}
	if err := json.Unmarshal(failure.ActionError.Kind, &kind); err == nil && kind.FunctionCallError != nil {
		if kind.FunctionCallError.ExecutionError != nil {
			return fmt.Sprintf("%sSmart contract panicked: %s", prefix, *kind.FunctionCallError.ExecutionError)
		}
		return fmt.Sprintf("%sFunction call error: %s", prefix, failure.ActionError.Kind)
	}
	return fmt.Sprintf("%sAction error: %s", prefix, failure.ActionError.Kind)
}
