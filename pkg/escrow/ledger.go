package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"intent-swap/pkg/swap"
)

const (
	// DefaultFeeBps is the fee charged when none is configured (0.1%).
	DefaultFeeBps uint32 = 10

	// MaxFeeBps caps the configurable fee at 10%.
	MaxFeeBps uint32 = 1000

	// DefaultSecretsProfile names the worker secrets profile.
	DefaultSecretsProfile = "production"
)

// Params configures a fresh ledger.
type Params struct {
	Owner          string
	Operator       string
	SecretsProfile string
	FeeBps         *uint32
}

// Ledger escrows deposited tokens, dispatches swap jobs to the worker and
// settles each request exactly once when the worker's response lands.
type Ledger struct {
	Store      Store
	Tokens     TokenClient
	Dispatcher Dispatcher

	// AccountID is the escrow account itself, forwarded to workers as the
	// swap_contract_id they sign with.
	AccountID string

	Log zerolog.Logger

	// Now stamps new pending swaps; tests override it.
	Now func() time.Time
}

// NewLedger wires a ledger around its collaborators. Call Init once on a
// fresh store before accepting deposits.
func NewLedger(store Store, tokens TokenClient, dispatcher Dispatcher, accountID string, logger zerolog.Logger) *Ledger {
	return &Ledger{
		Store:      store,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		AccountID:  accountID,
		Log:        logger,
	}
}

// Init seeds the control state. It fails if the ledger was already
// initialized so a redeploy cannot silently reset the request counter.
func (l *Ledger) Init(ctx context.Context, p Params) error {
	existing, err := l.Store.State(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.New("ledger already initialized")
	}
	if p.Owner == "" {
		return errors.New("owner is required")
	}

	operator := p.Operator
	if operator == "" {
		operator = p.Owner
	}
	profile := p.SecretsProfile
	if profile == "" {
		profile = DefaultSecretsProfile
	}
	feeBps := DefaultFeeBps
	if p.FeeBps != nil {
		feeBps = *p.FeeBps
	}
	if feeBps > MaxFeeBps {
		return ErrFeeTooHigh
	}

	return l.Store.SaveState(ctx, &State{
		Owner:          p.Owner,
		Operator:       operator,
		SecretsProfile: profile,
		FeeBps:         feeBps,
	})
}

// OnTransfer accepts a token deposit and starts a swap. tokenIn is the
// NEP-141 contract that delivered the deposit and msg is its transfer
// message. The escrowed record keeps the original amount; the worker is
// handed the amount net of fee. Returns the assigned request id.
func (l *Ledger) OnTransfer(ctx context.Context, senderID, tokenIn string, amount *big.Int, msg string) (uint64, error) {
	state, err := l.loadState(ctx)
	if err != nil {
		return 0, err
	}
	if state.Paused {
		return 0, ErrPaused
	}
	if state.SwapsPaused {
		return 0, ErrSwapsPaused
	}

	inCfg, err := l.Store.TokenConfig(ctx, tokenIn)
	if err != nil {
		return 0, err
	}
	if inCfg == nil {
		return 0, fmt.Errorf("token in %s: %w", tokenIn, ErrNotWhitelisted)
	}

	tokenOut, minAmountOut, err := parseReceiverMessage(msg)
	if err != nil {
		return 0, err
	}

	outCfg, err := l.Store.TokenConfig(ctx, tokenOut)
	if err != nil {
		return 0, err
	}
	if outCfg == nil {
		return 0, fmt.Errorf("token out %s: %w", tokenOut, ErrNotWhitelisted)
	}

	if tokenIn == tokenOut {
		return 0, ErrSelfSwap
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, ErrZeroAmount
	}
	if amount.Cmp(inCfg.MinSwapAmount) < 0 {
		return 0, fmt.Errorf("amount %s is below minimum swap amount %s: %w", amount, inCfg.MinSwapAmount, ErrBelowMinimum)
	}

	fee, afterFee := SplitFee(amount, state.FeeBps)

	requestID := state.NextRequestID
	state.NextRequestID++

	pending := &PendingSwap{
		RequestID:    requestID,
		SenderID:     senderID,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     new(big.Int).Set(amount),
		MinAmountOut: minAmountOut,
		Fee:          fee,
		CreatedAt:    l.now(),
	}
	if err := l.Store.PutPendingSwap(ctx, pending); err != nil {
		return 0, err
	}
	if err := l.Store.SaveState(ctx, state); err != nil {
		return 0, err
	}

	job := swap.Job{
		SenderID:       senderID,
		TokenIn:        inCfg.VenueAssetID,
		TokenOut:       outCfg.VenueAssetID,
		AmountIn:       afterFee.String(),
		MinAmountOut:   minAmountOut.String(),
		SwapContractID: l.AccountID,
	}

	l.Log.Info().
		Uint64("request_id", requestID).
		Str("sender", senderID).
		Str("token_in", tokenIn).
		Str("token_out", tokenOut).
		Str("amount_in", amount.String()).
		Str("fee", fee.String()).
		Msg("swap request escrowed")

	l.Dispatcher.Dispatch(ctx, requestID, job)
	return requestID, nil
}

// HandleResult settles one dispatched request. The pending record is
// consumed up front so a replayed response cannot pay twice; a second call
// for the same id reports ErrUnknownRequest.
func (l *Ledger) HandleResult(ctx context.Context, requestID uint64, resp *ExecutionResponse, dispatchErr error) (*Outcome, error) {
	pending, err := l.Store.TakePendingSwap(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fmt.Errorf("request %d: %w", requestID, ErrUnknownRequest)
	}

	// Dispatch-level failures are ambiguous: the worker may have moved
	// funds before dying, so no automatic refund.
	if dispatchErr != nil {
		return l.abort(pending, fmt.Sprintf("Worker dispatch failed: %s", dispatchErr)), nil
	}
	if resp == nil {
		return l.abort(pending, "Worker returned no response"), nil
	}

	if !resp.Success {
		reason := "Unknown error"
		if resp.Error != nil {
			reason = *resp.Error
		}
		return l.refund(ctx, pending, fmt.Sprintf("Execution failed: %s", reason))
	}
	if resp.Output == nil {
		return l.refund(ctx, pending, "No output data in successful execution")
	}

	var result swap.Result
	if err := json.Unmarshal([]byte(resp.Output.Data), &result); err != nil {
		return l.refund(ctx, pending, fmt.Sprintf("Failed to parse swap response: %s", err))
	}
	if !result.Success || result.AmountOut == nil {
		reason := "Unknown error"
		if result.ErrorMessage != nil {
			reason = *result.ErrorMessage
		}
		return l.refund(ctx, pending, fmt.Sprintf("Swap failed: %s", reason))
	}

	amountOut, ok := new(big.Int).SetString(*result.AmountOut, 10)
	if !ok || amountOut.Sign() < 0 {
		amountOut = new(big.Int)
	}
	if amountOut.Cmp(pending.MinAmountOut) < 0 {
		return l.refund(ctx, pending, fmt.Sprintf("Output amount %s is less than minimum %s", amountOut, pending.MinAmountOut))
	}

	return l.fulfil(ctx, pending, amountOut, result.IntentHash)
}

// ResultSink adapts the ledger to the dispatcher's callback, logging every
// settled outcome.
func (l *Ledger) ResultSink() ResultHandler {
	return func(ctx context.Context, requestID uint64, resp *ExecutionResponse, dispatchErr error) {
		outcome, err := l.HandleResult(ctx, requestID, resp, dispatchErr)
		if err != nil {
			l.Log.Error().Uint64("request_id", requestID).Err(err).Msg("failed to settle swap request")
			return
		}
		evt := l.Log.Info().Uint64("request_id", requestID).Str("outcome", string(outcome.Kind))
		if outcome.AmountOut != nil {
			evt = evt.Str("amount_out", outcome.AmountOut.String())
		}
		if outcome.TxHash != "" {
			evt = evt.Str("tx_hash", outcome.TxHash)
		}
		if outcome.Reason != "" {
			evt = evt.Str("reason", outcome.Reason)
		}
		evt.Msg("swap request settled")
	}
}

func (l *Ledger) fulfil(ctx context.Context, pending *PendingSwap, amountOut *big.Int, intentHash *string) (*Outcome, error) {
	// Credit the fee before paying out so a payout failure cannot lose it.
	if pending.Fee.Sign() > 0 {
		if err := l.Store.AddFee(ctx, pending.TokenIn, pending.Fee); err != nil {
			return l.abort(pending, fmt.Sprintf("fee credit failed: %s", err)),
				fmt.Errorf("failed to credit fee for request %d: %w", pending.RequestID, err)
		}
	}

	hash := ""
	if intentHash != nil {
		hash = *intentHash
	}
	memo := fmt.Sprintf("NEAR Intents swap completed. Intent: %s", hash)
	txHash, err := l.Tokens.Transfer(ctx, pending.TokenOut, pending.SenderID, amountOut, memo)
	if err != nil {
		return l.abort(pending, fmt.Sprintf("payout transfer failed: %s", err)),
			fmt.Errorf("failed to pay out request %d: %w", pending.RequestID, err)
	}

	l.Log.Info().
		Uint64("request_id", pending.RequestID).
		Str("token_out", pending.TokenOut).
		Str("amount_out", amountOut.String()).
		Str("tx_hash", txHash).
		Msg("swap fulfilled")

	return &Outcome{
		RequestID: pending.RequestID,
		Kind:      Fulfilled,
		AmountOut: amountOut,
		TxHash:    txHash,
	}, nil
}

func (l *Ledger) refund(ctx context.Context, pending *PendingSwap, reason string) (*Outcome, error) {
	memo := fmt.Sprintf("Refund for swap request #%d", pending.RequestID)
	txHash, err := l.Tokens.Transfer(ctx, pending.TokenIn, pending.SenderID, pending.AmountIn, memo)
	if err != nil {
		return l.abort(pending, fmt.Sprintf("refund transfer failed: %s", err)),
			fmt.Errorf("failed to refund request %d: %w", pending.RequestID, err)
	}

	l.Log.Warn().
		Uint64("request_id", pending.RequestID).
		Str("token_in", pending.TokenIn).
		Str("amount_in", pending.AmountIn.String()).
		Str("reason", reason).
		Msg("swap refunded")

	return &Outcome{
		RequestID: pending.RequestID,
		Kind:      Refunded,
		TxHash:    txHash,
		Reason:    reason,
	}, nil
}

func (l *Ledger) abort(pending *PendingSwap, reason string) *Outcome {
	l.Log.Error().
		Uint64("request_id", pending.RequestID).
		Str("reason", reason).
		Msg("swap aborted, manual intervention required")

	return &Outcome{
		RequestID: pending.RequestID,
		Kind:      Aborted,
		Reason:    reason,
	}
}

func (l *Ledger) loadState(ctx context.Context) (*State, error) {
	state, err := l.Store.State(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, errors.New("ledger is not initialized")
	}
	return state, nil
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// SplitFee divides a deposit into the collected fee and the amount that is
// actually swapped. The fee is floor(amount * bps / 10000).
func SplitFee(amount *big.Int, bps uint32) (fee, after *big.Int) {
	fee = new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	fee.Quo(fee, big.NewInt(10000))
	after = new(big.Int).Sub(amount, fee)
	return fee, after
}

func parseReceiverMessage(msg string) (tokenOut string, minAmountOut *big.Int, err error) {
	var m receiverMessage
	if err := json.Unmarshal([]byte(msg), &m); err != nil {
		return "", nil, ErrInvalidMessage
	}
	if m.Swap == nil || m.Swap.TokenOut == "" {
		return "", nil, ErrInvalidMessage
	}

	min := new(big.Int)
	if m.Swap.MinAmountOut != nil {
		if v, ok := new(big.Int).SetString(*m.Swap.MinAmountOut, 10); ok && v.Sign() >= 0 {
			min = v
		}
	}
	return m.Swap.TokenOut, min, nil
}
