package nearrpc

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"intent-swap/pkg/neartx"
)

// TGas is 10^12 gas units.
const TGas uint64 = 1_000_000_000_000

// Gas budgets for the function calls this module issues.
const (
	FTTransferCallGas = 300 * TGas
	FTTransferGas     = 30 * TGas
	StorageDepositGas = 30 * TGas
)

// OneYocto is the attached deposit NEP-141 transfer methods require.
var OneYocto = big.NewInt(1)

// StorageDepositAmount is 0.00125 NEAR, the standard registration bond.
var StorageDepositAmount, _ = new(big.Int).SetString("1250000000000000000000000", 10)

// Account signs and submits transactions for one NEAR account.
type Account struct {
	Client *Client
	ID     string
	Key    ed25519.PrivateKey
}

// NewAccount pairs an account id with its signing key.
func NewAccount(client *Client, id string, key ed25519.PrivateKey) *Account {
	return &Account{Client: client, ID: id, Key: key}
}

// Call builds, signs and broadcasts a single FunctionCall transaction. The
// nonce and block hash come from the account's access key; the transaction
// uses the key's current nonce plus one.
func (a *Account) Call(ctx context.Context, receiverID, method string, args interface{}, gas uint64, deposit *big.Int) (*TxResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	pub := neartx.PublicKeyOf(a.Key)
	nonce, blockHash, err := a.Client.AccessKeyInfo(ctx, a.ID, pub)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch access key: %w", err)
	}

	tx := &neartx.Transaction{
		SignerID:   a.ID,
		PublicKey:  pub,
		Nonce:      nonce + 1,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions: []neartx.Action{
			neartx.NewFunctionCall(method, argsJSON, gas, deposit),
		},
	}

	signed, err := neartx.Sign(tx, a.Key)
	if err != nil {
		return nil, err
	}
	raw, err := signed.Encode()
	if err != nil {
		return nil, err
	}

	a.Client.log.Info().
		Str("signer", a.ID).
		Str("receiver", receiverID).
		Str("method", method).
		Uint64("nonce", nonce+1).
		Msg("sending transaction")

	return a.Client.BroadcastTxCommit(ctx, base64.StdEncoding.EncodeToString(raw))
}

// FTTransferCall deposits tokens into a receiving contract via the NEP-141
// transfer-and-call flow.
func (a *Account) FTTransferCall(ctx context.Context, token, receiverID string, amount *big.Int, msg string) (*TxResult, error) {
	args := map[string]interface{}{
		"receiver_id": receiverID,
		"amount":      amount.String(),
		"msg":         msg,
	}
	return a.Call(ctx, token, "ft_transfer_call", args, FTTransferCallGas, OneYocto)
}

// FTTransfer moves tokens to the receiver.
func (a *Account) FTTransfer(ctx context.Context, token, receiverID string, amount *big.Int, memo string) (*TxResult, error) {
	args := map[string]interface{}{
		"receiver_id": receiverID,
		"amount":      amount.String(),
	}
	if memo != "" {
		args["memo"] = memo
	}
	return a.Call(ctx, token, "ft_transfer", args, FTTransferGas, OneYocto)
}

// StorageDeposit registers an account with a token contract. An empty
// accountID registers the signer itself.
func (a *Account) StorageDeposit(ctx context.Context, token, accountID string, registrationOnly bool) (*TxResult, error) {
	args := map[string]interface{}{
		"registration_only": registrationOnly,
	}
	if accountID != "" {
		args["account_id"] = accountID
	} else {
		args["account_id"] = nil
	}
	return a.Call(ctx, token, "storage_deposit", args, StorageDepositGas, StorageDepositAmount)
}
