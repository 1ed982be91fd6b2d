package escrow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// SetOwner transfers ownership. Owner only.
func (l *Ledger) SetOwner(ctx context.Context, caller, newOwner string) error {
	if newOwner == "" {
		return errors.New("owner is required")
	}
	return l.mutateState(ctx, caller, func(s *State) {
		s.Owner = newOwner
	})
}

// SetOperator changes the operator account used for worker secrets. Owner only.
func (l *Ledger) SetOperator(ctx context.Context, caller, operator string) error {
	if operator == "" {
		return errors.New("operator is required")
	}
	return l.mutateState(ctx, caller, func(s *State) {
		s.Operator = operator
	})
}

// SetSecretsProfile changes the worker secrets profile. Owner only.
func (l *Ledger) SetSecretsProfile(ctx context.Context, caller, profile string) error {
	if profile == "" {
		return errors.New("secrets profile is required")
	}
	return l.mutateState(ctx, caller, func(s *State) {
		s.SecretsProfile = profile
	})
}

// SetFeeBps changes the swap fee, capped at MaxFeeBps. Owner only. Swaps
// already in flight keep the fee frozen in their pending record.
func (l *Ledger) SetFeeBps(ctx context.Context, caller string, bps uint32) error {
	if bps > MaxFeeBps {
		return ErrFeeTooHigh
	}
	return l.mutateState(ctx, caller, func(s *State) {
		s.FeeBps = bps
	})
}

// SetPaused stops or resumes all operations. Owner or operator.
func (l *Ledger) SetPaused(ctx context.Context, caller string, paused bool) error {
	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner && caller != state.Operator {
		return ErrNotAuthorized
	}
	state.Paused = paused
	return l.Store.SaveState(ctx, state)
}

// SetSwapsPaused stops or resumes new swaps; in-flight continuations still
// settle. Owner or operator.
func (l *Ledger) SetSwapsPaused(ctx context.Context, caller string, paused bool) error {
	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner && caller != state.Operator {
		return ErrNotAuthorized
	}
	state.SwapsPaused = paused
	return l.Store.SaveState(ctx, state)
}

// WhitelistToken admits a token for swapping. An empty venueAssetID defaults
// to "nep141:<token>"; a nil or non-positive minimum defaults to 1. Owner only.
func (l *Ledger) WhitelistToken(ctx context.Context, caller, token, venueAssetID string, minSwapAmount *big.Int) error {
	if token == "" {
		return errors.New("token is required")
	}

	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return ErrNotOwner
	}

	if venueAssetID == "" {
		venueAssetID = "nep141:" + token
	}
	min := minSwapAmount
	if min == nil || min.Sign() <= 0 {
		min = big.NewInt(1)
	}

	return l.Store.PutTokenConfig(ctx, token, &TokenConfig{
		VenueAssetID:  venueAssetID,
		MinSwapAmount: new(big.Int).Set(min),
	})
}

// UpdateTokenConfig changes fields of an existing whitelist entry. Empty or
// nil arguments keep the current value. Owner only.
func (l *Ledger) UpdateTokenConfig(ctx context.Context, caller, token, venueAssetID string, minSwapAmount *big.Int) error {
	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return ErrNotOwner
	}

	cfg, err := l.Store.TokenConfig(ctx, token)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("token %s: %w", token, ErrNotWhitelisted)
	}

	if venueAssetID != "" {
		cfg.VenueAssetID = venueAssetID
	}
	if minSwapAmount != nil {
		cfg.MinSwapAmount = new(big.Int).Set(minSwapAmount)
	}
	return l.Store.PutTokenConfig(ctx, token, cfg)
}

// RemoveToken drops a token from the whitelist. Owner only.
func (l *Ledger) RemoveToken(ctx context.Context, caller, token string) error {
	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return ErrNotOwner
	}
	return l.Store.RemoveTokenConfig(ctx, token)
}

// WithdrawFees pays collected fees out of the ledger. A nil amount withdraws
// the full balance; an empty receiver pays the owner. The balance is
// decremented before the transfer is attempted. Owner only. Returns the
// transfer transaction hash.
func (l *Ledger) WithdrawFees(ctx context.Context, caller, token string, amount *big.Int, receiver string) (string, error) {
	state, err := l.loadState(ctx)
	if err != nil {
		return "", err
	}
	if caller != state.Owner {
		return "", ErrNotOwner
	}

	available, err := l.Store.FeeBalance(ctx, token)
	if err != nil {
		return "", err
	}
	if available.Sign() <= 0 {
		return "", fmt.Errorf("token %s: %w", token, ErrNoFees)
	}

	withdraw := amount
	if withdraw == nil {
		withdraw = available
	}
	if withdraw.Sign() <= 0 {
		return "", errors.New("withdraw amount must be greater than 0")
	}
	if withdraw.Cmp(available) > 0 {
		return "", fmt.Errorf("cannot withdraw %s - only %s available", withdraw, available)
	}

	if receiver == "" {
		receiver = state.Owner
	}

	remaining := new(big.Int).Sub(available, withdraw)
	if err := l.Store.SetFeeBalance(ctx, token, remaining); err != nil {
		return "", err
	}

	txHash, err := l.Tokens.Transfer(ctx, token, receiver, withdraw, "Fee withdrawal")
	if err != nil {
		return "", fmt.Errorf("failed to withdraw fees: %w", err)
	}

	l.Log.Info().
		Str("token", token).
		Str("amount", withdraw.String()).
		Str("receiver", receiver).
		Str("remaining", remaining.String()).
		Msg("fees withdrawn")

	return txHash, nil
}

// Config returns a copy of the control state.
func (l *Ledger) Config(ctx context.Context) (*State, error) {
	return l.loadState(ctx)
}

// TokenConfigOf returns the whitelist entry for a token, nil when absent.
func (l *Ledger) TokenConfigOf(ctx context.Context, token string) (*TokenConfig, error) {
	return l.Store.TokenConfig(ctx, token)
}

// WhitelistedTokens returns every whitelist entry keyed by token contract.
func (l *Ledger) WhitelistedTokens(ctx context.Context) (map[string]*TokenConfig, error) {
	return l.Store.TokenConfigs(ctx)
}

// IsTokenWhitelisted reports whether a token may be swapped.
func (l *Ledger) IsTokenWhitelisted(ctx context.Context, token string) (bool, error) {
	cfg, err := l.Store.TokenConfig(ctx, token)
	if err != nil {
		return false, err
	}
	return cfg != nil, nil
}

// CollectedFees returns the fee balance for a token, zero when none.
func (l *Ledger) CollectedFees(ctx context.Context, token string) (*big.Int, error) {
	return l.Store.FeeBalance(ctx, token)
}

// AllFees returns every non-zero fee balance keyed by token contract.
func (l *Ledger) AllFees(ctx context.Context) (map[string]*big.Int, error) {
	return l.Store.FeeBalances(ctx)
}

// IsPaused reports whether all operations are stopped.
func (l *Ledger) IsPaused(ctx context.Context) (bool, error) {
	state, err := l.loadState(ctx)
	if err != nil {
		return false, err
	}
	return state.Paused, nil
}

// IsSwapsPaused reports whether new swaps are stopped.
func (l *Ledger) IsSwapsPaused(ctx context.Context) (bool, error) {
	state, err := l.loadState(ctx)
	if err != nil {
		return false, err
	}
	return state.SwapsPaused, nil
}

// PendingSwapOf returns an in-flight swap record, nil when absent.
func (l *Ledger) PendingSwapOf(ctx context.Context, requestID uint64) (*PendingSwap, error) {
	return l.Store.GetPendingSwap(ctx, requestID)
}

func (l *Ledger) mutateState(ctx context.Context, caller string, apply func(*State)) error {
	state, err := l.loadState(ctx)
	if err != nil {
		return err
	}
	if caller != state.Owner {
		return ErrNotOwner
	}
	apply(state)
	return l.Store.SaveState(ctx, state)
}
