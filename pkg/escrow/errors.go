package escrow

import "errors"

var (
	ErrPaused         = errors.New("contract is paused")
	ErrSwapsPaused    = errors.New("swaps are paused")
	ErrNotWhitelisted = errors.New("token not whitelisted")
	ErrInvalidMessage = errors.New("invalid token receiver message format")
	ErrSelfSwap       = errors.New("cannot swap token to itself")
	ErrZeroAmount     = errors.New("amount in must be greater than 0")
	ErrBelowMinimum   = errors.New("amount below minimum swap amount")
	ErrFeeTooHigh     = errors.New("fee cannot exceed 10%")
	ErrNotOwner       = errors.New("only owner can call this method")
	ErrNotAuthorized  = errors.New("only owner or operator can call this method")
	ErrUnknownRequest = errors.New("unknown swap request")
	ErrNoFees         = errors.New("no fees collected for this token")
)
