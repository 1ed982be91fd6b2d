package neartx

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	seed := bytes.Repeat([]byte{0x11}, ed25519.SeedSize)
	return ed25519.NewKeyFromSeed(seed)
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

func appendString(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendU128(b []byte, v *big.Int) []byte {
	var be [16]byte
	v.FillBytes(be[:])
	for i := 15; i >= 0; i-- {
		b = append(b, be[i])
	}
	return b
}

func TestTransactionEncodeLayout(t *testing.T) {
	key := testKey(t)
	pub := PublicKeyOf(key)

	var blockHash [32]byte
	for i := range blockHash {
		blockHash[i] = byte(i)
	}

	args := []byte(`{"amount":"1"}`)
	deposit := big.NewInt(1)
	tx := &Transaction{
		SignerID:   "escrow.near",
		PublicKey:  pub,
		Nonce:      77,
		ReceiverID: "usdt.tether-token.near",
		BlockHash:  blockHash,
		Actions: []Action{
			NewFunctionCall("ft_transfer_call", args, 300_000_000_000_000, deposit),
		},
	}

	got, err := tx.Encode()
	require.NoError(t, err)

	var want []byte
	want = appendString(want, "escrow.near")
	want = append(want, 0) // ed25519 key tag
	want = append(want, pub.Data[:]...)
	want = appendU64(want, 77)
	want = appendString(want, "usdt.tether-token.near")
	want = append(want, blockHash[:]...)
	want = appendU32(want, 1)
	want = append(want, 2) // FunctionCall action tag
	want = appendString(want, "ft_transfer_call")
	want = appendU32(want, uint32(len(args)))
	want = append(want, args...)
	want = appendU64(want, 300_000_000_000_000)
	want = appendU128(want, deposit)

	assert.Equal(t, want, got)
}

func TestTransferActionTag(t *testing.T) {
	key := testKey(t)
	tx := &Transaction{
		SignerID:   "a.near",
		PublicKey:  PublicKeyOf(key),
		Nonce:      1,
		ReceiverID: "b.near",
		Actions:    []Action{NewTransfer(big.NewInt(5))},
	}

	raw, err := tx.Encode()
	require.NoError(t, err)

	// The action list sits at the tail: count, tag, 16-byte amount.
	tail := raw[len(raw)-21:]
	assert.Equal(t, []byte{1, 0, 0, 0}, tail[:4])
	assert.Equal(t, byte(3), tail[4])
	assert.Equal(t, byte(5), tail[5])
}

func TestTransactionEncodeDeterministic(t *testing.T) {
	key := testKey(t)
	tx := &Transaction{
		SignerID:   "a.near",
		PublicKey:  PublicKeyOf(key),
		Nonce:      9,
		ReceiverID: "b.near",
		Actions:    []Action{NewFunctionCall("m", []byte("{}"), 1, big.NewInt(0))},
	}

	first, err := tx.Encode()
	require.NoError(t, err)
	second, err := tx.Encode()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTransactionEncodeDepositOutOfRange(t *testing.T) {
	key := testKey(t)
	over := new(big.Int).Lsh(big.NewInt(1), 128)
	tx := &Transaction{
		SignerID:   "a.near",
		PublicKey:  PublicKeyOf(key),
		ReceiverID: "b.near",
		Actions:    []Action{NewTransfer(over)},
	}

	_, err := tx.Encode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u128")
}

func TestSignVerifies(t *testing.T) {
	key := testKey(t)
	tx := &Transaction{
		SignerID:   "escrow.near",
		PublicKey:  PublicKeyOf(key),
		Nonce:      3,
		ReceiverID: "intents.near",
		Actions:    []Action{NewFunctionCall("ping", nil, 10, big.NewInt(0))},
	}

	st, err := Sign(tx, key)
	require.NoError(t, err)

	raw, err := tx.Encode()
	require.NoError(t, err)
	digest := sha256.Sum256(raw)

	pub := key.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, digest[:], st.Signature.Data[:]))

	// Signing the same transaction twice yields identical bytes.
	again, err := Sign(tx, key)
	require.NoError(t, err)
	assert.Equal(t, st.Signature, again.Signature)
}

func TestSignedTransactionEncode(t *testing.T) {
	key := testKey(t)
	tx := &Transaction{
		SignerID:   "a.near",
		PublicKey:  PublicKeyOf(key),
		Nonce:      1,
		ReceiverID: "b.near",
		Actions:    []Action{NewTransfer(big.NewInt(1))},
	}

	st, err := Sign(tx, key)
	require.NoError(t, err)

	raw, err := st.Encode()
	require.NoError(t, err)
	txRaw, err := tx.Encode()
	require.NoError(t, err)

	require.Len(t, raw, len(txRaw)+1+64)
	assert.Equal(t, txRaw, raw[:len(txRaw)])
	assert.Equal(t, byte(0), raw[len(txRaw)])
	assert.Equal(t, st.Signature.Data[:], raw[len(txRaw)+1:])
}

func TestDecodeBlockHash(t *testing.T) {
	var want [32]byte
	for i := range want {
		want[i] = byte(255 - i)
	}

	got, err := DecodeBlockHash(base58.Encode(want[:]))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeBlockHash(base58.Encode([]byte("short")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	_, err = DecodeBlockHash("not-base58-0OIl")
	require.Error(t, err)
}
