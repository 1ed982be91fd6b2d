package escrow

import (
	"math/big"
	"time"
)

// State is the ledger's durable control block.
type State struct {
	Owner          string `json:"owner"`
	Operator       string `json:"operator"`
	SecretsProfile string `json:"secrets_profile"`
	Paused         bool   `json:"paused"`
	SwapsPaused    bool   `json:"swaps_paused"`
	FeeBps         uint32 `json:"fee_bps"`
	NextRequestID  uint64 `json:"next_request_id"`
}

// TokenConfig describes one whitelisted token.
type TokenConfig struct {
	VenueAssetID  string   `json:"venue_asset_id"`
	MinSwapAmount *big.Int `json:"min_swap_amount"`
}

// PendingSwap is the escrow record that survives the dispatch boundary.
// AmountIn is the original deposited amount so a refund returns the full
// deposit; Fee is frozen at deposit time so a fee-rate change cannot affect
// an in-flight swap.
type PendingSwap struct {
	RequestID    uint64    `json:"request_id"`
	SenderID     string    `json:"sender_id"`
	TokenIn      string    `json:"token_in"`
	TokenOut     string    `json:"token_out"`
	AmountIn     *big.Int  `json:"amount_in"`
	MinAmountOut *big.Int  `json:"min_amount_out"`
	Fee          *big.Int  `json:"fee"`
	CreatedAt    time.Time `json:"created_at"`
}

// ExecutionResponse is the dispatcher's envelope around one worker run. The
// worker's stdout JSON rides inside Output.Data.
type ExecutionResponse struct {
	Success bool             `json:"success"`
	Output  *ExecutionOutput `json:"output"`
	Error   *string          `json:"error"`
}

// ExecutionOutput carries the worker's raw output.
type ExecutionOutput struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// OutcomeKind names how a continuation resolved.
type OutcomeKind string

const (
	Fulfilled OutcomeKind = "fulfilled"
	Refunded  OutcomeKind = "refunded"
	Aborted   OutcomeKind = "aborted"
)

// Outcome reports the resolution of one swap request.
type Outcome struct {
	RequestID uint64      `json:"request_id"`
	Kind      OutcomeKind `json:"kind"`
	AmountOut *big.Int    `json:"amount_out,omitempty"`
	TxHash    string      `json:"tx_hash,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// receiverMessage is the ft_on_transfer msg payload:
// {"Swap":{"token_out":..., "min_amount_out":...}}.
type receiverMessage struct {
	Swap *struct {
		TokenOut     string  `json:"token_out"`
		MinAmountOut *string `json:"min_amount_out"`
	} `json:"Swap"`
}
