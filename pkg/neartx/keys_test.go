package neartx

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeySeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x22}, ed25519.SeedSize)
	want := ed25519.NewKeyFromSeed(seed)

	got, err := ParseKey(base58.Encode(seed))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseKeyWithPrefix(t *testing.T) {
	seed := bytes.Repeat([]byte{0x33}, ed25519.SeedSize)
	want := ed25519.NewKeyFromSeed(seed)

	got, err := ParseKey("ed25519:" + base58.Encode(seed))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseKeyExpanded(t *testing.T) {
	// NEAR tooling exports the 64-byte form: seed followed by public key.
	seed := bytes.Repeat([]byte{0x44}, ed25519.SeedSize)
	want := ed25519.NewKeyFromSeed(seed)
	full := append(append([]byte{}, seed...), want.Public().(ed25519.PublicKey)...)

	got, err := ParseKey("ed25519:" + base58.Encode(full))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseKeyBadLength(t *testing.T) {
	_, err := ParseKey(base58.Encode(bytes.Repeat([]byte{0x55}, 40)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 40")
}

func TestParseKeyEmpty(t *testing.T) {
	_, err := ParseKey("")
	require.Error(t, err)

	_, err = ParseKey("ed25519:")
	require.Error(t, err)
}

func TestParseKeyBadBase58(t *testing.T) {
	_, err := ParseKey("ed25519:0OIl+/")
	require.Error(t, err)
}

func TestPublicKeyString(t *testing.T) {
	seed := bytes.Repeat([]byte{0x66}, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(seed)
	pk := PublicKeyOf(key)

	want := "ed25519:" + base58.Encode(key.Public().(ed25519.PublicKey))
	assert.Equal(t, want, pk.String())
}
