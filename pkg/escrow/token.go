package escrow

import (
	"context"
	"math/big"

	"intent-swap/pkg/nearrpc"
)

// TokenClient moves NEP-141 tokens on behalf of the escrow account.
type TokenClient interface {
	Transfer(ctx context.Context, token, receiver string, amount *big.Int, memo string) (string, error)
}

// AccountTokenClient transfers tokens with a signing NEAR account.
type AccountTokenClient struct {
	Account *nearrpc.Account
}

func (c *AccountTokenClient) Transfer(ctx context.Context, token, receiver string, amount *big.Int, memo string) (string, error) {
	res, err := c.Account.FTTransfer(ctx, token, receiver, amount, memo)
	if err != nil {
		return "", err
	}
	return res.Hash, nil
}
