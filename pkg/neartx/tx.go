// Package neartx builds, encodes and signs NEAR transactions. The encoding
// is the chain's canonical borsh layout; every field and enum tag below is
// fixed by protocol, so ordering here is load-bearing.
package neartx

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"

	"intent-swap/pkg/borsh"
)

// Action enum tags. The chain decodes actions by position in this union.
const (
	actionCreateAccount byte = iota
	actionDeployContract
	actionFunctionCall
	actionTransfer
	actionStake
	actionAddKey
	actionDeleteKey
	actionDeleteAccount
)

// Action is one entry of a transaction's action list.
type Action interface {
	encode(w *borsh.Writer)
}

// FunctionCall invokes a method on a contract, attaching gas and a deposit.
type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

// NewFunctionCall builds a FunctionCall action with JSON-encoded args.
func NewFunctionCall(method string, args []byte, gas uint64, deposit *big.Int) *FunctionCall {
	return &FunctionCall{MethodName: method, Args: args, Gas: gas, Deposit: deposit}
}

func (a *FunctionCall) encode(w *borsh.Writer) {
	w.U8(actionFunctionCall)
	w.String(a.MethodName)
	w.VarBytes(a.Args)
	w.U64(a.Gas)
	w.U128(a.Deposit)
}

// Transfer moves native NEAR to the receiver.
type Transfer struct {
	Deposit *big.Int
}

// NewTransfer builds a Transfer action.
func NewTransfer(deposit *big.Int) *Transfer {
	return &Transfer{Deposit: deposit}
}

func (a *Transfer) encode(w *borsh.Writer) {
	w.U8(actionTransfer)
	w.U128(a.Deposit)
}

// Transaction is the unsigned transaction envelope.
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []Action
}

// Encode returns the canonical borsh bytes of the unsigned transaction.
func (t *Transaction) Encode() ([]byte, error) {
	var w borsh.Writer
	w.String(t.SignerID)
	w.U8(keyTypeED25519)
	w.Raw(t.PublicKey.Data[:])
	w.U64(t.Nonce)
	w.String(t.ReceiverID)
	w.Raw(t.BlockHash[:])
	w.U32(uint32(len(t.Actions)))
	for _, a := range t.Actions {
		a.encode(&w)
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return w.Bytes(), nil
}

// Hash returns the SHA-256 digest of the canonical transaction bytes. This
// is both the signing preimage and the transaction id the chain reports.
func (t *Transaction) Hash() ([32]byte, error) {
	raw, err := t.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// SignedTransaction pairs a transaction with its signature.
type SignedTransaction struct {
	Transaction *Transaction
	Signature   Signature
}

// Sign hashes the transaction and signs the digest with the given key.
func Sign(tx *Transaction, key ed25519.PrivateKey) (*SignedTransaction, error) {
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}

	var sig Signature
	copy(sig.Data[:], ed25519.Sign(key, hash[:]))
	return &SignedTransaction{Transaction: tx, Signature: sig}, nil
}

// Encode returns the borsh bytes of the signed transaction: the transaction
// followed by the tagged signature.
func (st *SignedTransaction) Encode() ([]byte, error) {
	raw, err := st.Transaction.Encode()
	if err != nil {
		return nil, err
	}

	var w borsh.Writer
	w.Raw(raw)
	w.U8(keyTypeED25519)
	w.Raw(st.Signature.Data[:])
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}
	return w.Bytes(), nil
}

// DecodeBlockHash parses a base58 block hash into its fixed 32-byte form.
func DecodeBlockHash(s string) ([32]byte, error) {
	var hash [32]byte
	b, err := base58.Decode(s)
	if err != nil {
		return hash, fmt.Errorf("failed to decode block hash: %w", err)
	}
	if len(b) != len(hash) {
		return hash, fmt.Errorf("block hash must be 32 bytes, got %d", len(b))
	}
	copy(hash[:], b)
	return hash, nil
}
