package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"intent-swap/pkg/nearrpc"
	"intent-swap/pkg/solver"
)

// Executor drives one swap saga against the ledger RPC node and the
// settlement venue. Every network dependency is injectable.
type Executor struct {
	Near    *nearrpc.Client
	Venue   *solver.Client
	Account *nearrpc.Account
	Log     zerolog.Logger
}

// Execute runs the swap saga for one job. Each step's failure short-circuits
// the rest and is converted into a structured Result; Execute never returns
// an error past its boundary.
func (e *Executor) Execute(ctx context.Context, job Job) Result {
	// Step 1: get a quote from the venue.
	e.Log.Info().
		Str("token_in", job.TokenIn).
		Str("token_out", job.TokenOut).
		Str("amount_in", job.AmountIn).
		Msg("requesting quote")

	quote, err := e.Venue.BestQuote(ctx, solver.QuoteRequest{
		AssetIn:       job.TokenIn,
		AssetOut:      job.TokenOut,
		ExactAmountIn: job.AmountIn,
	})
	if err != nil {
		return failure(err.Error())
	}

	amountOut, ok := new(big.Int).SetString(quote.AmountOut, 10)
	if !ok {
		return failure("Failed to parse amount_out")
	}
	minAmountOut, ok := new(big.Int).SetString(job.MinAmountOut, 10)
	if !ok {
		return failure("Failed to parse min_amount_out")
	}
	if amountOut.Cmp(minAmountOut) < 0 {
		return failure(fmt.Sprintf("Insufficient liquidity: %s < %s", amountOut, minAmountOut))
	}

	e.Log.Info().
		Str("amount_out", quote.AmountOut).
		Str("expiration_time", quote.ExpirationTime).
		Msg("quote received")

	// Step 2: pre-flight check that the sender can receive the output token.
	// An unregistered sender fails fast; an unreachable check does not block
	// the swap.
	if !strings.HasPrefix(job.TokenOut, "nep141:") {
		return failure("Invalid token_out format, expected nep141:address")
	}
	tokenOutContract := strings.TrimPrefix(job.TokenOut, "nep141:")

	balance, err := e.Near.StorageBalanceOf(ctx, tokenOutContract, job.SenderID)
	if err != nil {
		e.Log.Warn().Err(err).Msg("could not verify storage deposit, proceeding")
	} else if balance == nil {
		return failure(fmt.Sprintf(
			"User %s has no storage deposit for output token %s. Please call storage_deposit first.",
			job.SenderID, tokenOutContract))
	}

	// Step 3: deposit the input tokens to the venue.
	if !strings.HasPrefix(job.TokenIn, "nep141:") {
		return failure("Invalid token_in format, expected nep141:address")
	}
	tokenInContract := strings.TrimPrefix(job.TokenIn, "nep141:")

	amountIn, ok := new(big.Int).SetString(job.AmountIn, 10)
	if !ok {
		return failure("Failed to parse amount_in")
	}

	e.Log.Info().
		Str("token", tokenInContract).
		Str("amount", job.AmountIn).
		Str("receiver", e.Venue.Contract).
		Msg("depositing to venue")

	deposit, err := e.Account.FTTransferCall(ctx, tokenInContract, e.Venue.Contract, amountIn, "")
	if err != nil {
		return failure(fmt.Sprintf("Deposit failed: %s", err))
	}
	e.Log.Info().
		Str("tx_hash", deposit.Hash).
		Str("explorer", explorerURL(deposit.Hash)).
		Msg("deposit confirmed")

	// Step 4: publish the swap intent with the quote's amounts and deadline.
	message, err := solver.TokenDiffMessage(
		e.Account.ID, quote.ExpirationTime,
		job.TokenIn, quote.AmountIn,
		job.TokenOut, quote.AmountOut,
	)
	if err != nil {
		return failure(fmt.Sprintf("Failed to publish intent: %s", err))
	}

	swapHash, err := e.Venue.PublishSigned(ctx, message, e.Account.Key, []string{quote.QuoteHash})
	if err != nil {
		return failure(fmt.Sprintf("Failed to publish intent: %s", err))
	}
	e.Log.Info().Str("intent_hash", swapHash).Msg("swap intent published")

	// Step 5: wait for the swap intent to settle.
	if err := e.Venue.WaitForSettlement(ctx, swapHash); err != nil {
		if errors.Is(err, solver.ErrSettlementTimeout) {
			return failure("Intent failed to settle within timeout").withIntentHash(swapHash)
		}
		return failure(err.Error()).withIntentHash(swapHash)
	}
	e.Log.Info().Str("intent_hash", swapHash).Msg("swap intent settled")

	// Step 6: withdraw the output tokens to the original sender.
	e.Log.Info().
		Str("token", job.TokenOut).
		Str("amount", quote.AmountOut).
		Str("receiver", job.SenderID).
		Msg("withdrawing to sender")

	withdrawMsg, err := solver.WithdrawMessage(
		e.Account.ID, solver.WithdrawDeadline(solver.WithdrawValidity),
		job.TokenOut, job.SenderID, quote.AmountOut,
	)
	if err != nil {
		return failure(fmt.Sprintf("Withdrawal failed: %s", err)).
			withAmountOut(quote.AmountOut).withIntentHash(swapHash)
	}

	withdrawHash, err := e.Venue.PublishSigned(ctx, withdrawMsg, e.Account.Key, nil)
	if err != nil {
		return failure(fmt.Sprintf("Withdrawal failed: %s", err)).
			withAmountOut(quote.AmountOut).withIntentHash(swapHash)
	}

	if err := e.Venue.WaitForSettlement(ctx, withdrawHash); err != nil {
		return failure("Failed to withdraw tokens from intents contract").
			withAmountOut(quote.AmountOut).withIntentHash(withdrawHash)
	}

	e.Log.Info().
		Str("amount_in", quote.AmountIn).
		Str("amount_out", quote.AmountOut).
		Msg("swap completed")

	return Result{
		Success:    true,
		AmountOut:  strptr(quote.AmountOut),
		IntentHash: strptr(withdrawHash),
	}
}

// CheckStorage verifies the escrow account is registered with a token
// contract, issuing a storage_deposit when it is not. A failed balance view
// is treated the same as an unregistered account.
func (e *Executor) CheckStorage(ctx context.Context, job Job) StorageResult {
	e.Log.Info().Str("token", job.TokenContract).Msg("checking storage registration")

	balance, err := e.Near.StorageBalanceOf(ctx, job.TokenContract, e.Account.ID)
	if err != nil {
		e.Log.Warn().Err(err).Msg("storage balance check failed, attempting storage_deposit")
		return e.registerStorage(ctx, job.TokenContract)
	}
	if balance != nil {
		total := balance.Total
		if total == "" {
			total = "unknown"
		}
		e.Log.Info().Str("total", total).Msg("already registered")
		return StorageResult{Success: true, AlreadyRegistered: true, StorageBalance: strptr(total)}
	}

	e.Log.Info().Msg("not registered, calling storage_deposit")
	return e.registerStorage(ctx, job.TokenContract)
}

func (e *Executor) registerStorage(ctx context.Context, token string) StorageResult {
	res, err := e.Account.StorageDeposit(ctx, token, "", false)
	if err != nil {
		return StorageResult{Error: strptr(err.Error())}
	}
	e.Log.Info().
		Str("tx_hash", res.Hash).
		Str("explorer", explorerURL(res.Hash)).
		Msg("storage deposit sent")
	return StorageResult{Success: true, TxHash: strptr(res.Hash)}
}

func explorerURL(hash string) string {
	return "https://nearblocks.io/txns/" + hash
}
