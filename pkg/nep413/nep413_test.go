package nep413

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{0x77}, ed25519.SeedSize))
}

func TestPayloadEncodeLayout(t *testing.T) {
	var nonce [32]byte
	for i := range nonce {
		nonce[i] = byte(i)
	}
	p := &Payload{Message: "hello", Nonce: nonce, Recipient: "intents.near"}

	raw, err := p.Encode()
	require.NoError(t, err)

	// 4-byte LE discriminant 2^31 + 413.
	assert.Equal(t, uint32(2147484061), binary.LittleEndian.Uint32(raw[:4]))

	var want []byte
	want = binary.LittleEndian.AppendUint32(want, 2147484061)
	want = binary.LittleEndian.AppendUint32(want, 5)
	want = append(want, "hello"...)
	want = append(want, nonce[:]...)
	want = binary.LittleEndian.AppendUint32(want, 12)
	want = append(want, "intents.near"...)
	want = append(want, 0) // no callback URL
	assert.Equal(t, want, raw)
}

func TestPayloadEncodeCallbackURL(t *testing.T) {
	url := "https://example.com/cb"
	p := &Payload{Message: "m", Recipient: "r", CallbackURL: &url}

	raw, err := p.Encode()
	require.NoError(t, err)

	// Option tag 0x01 then the length-prefixed URL at the tail.
	tail := raw[len(raw)-len(url)-5:]
	assert.Equal(t, byte(1), tail[0])
	assert.Equal(t, uint32(len(url)), binary.LittleEndian.Uint32(tail[1:5]))
	assert.Equal(t, url, string(tail[5:]))
}

func TestSignVerifies(t *testing.T) {
	key := testKey(t)
	nonce, err := ParseNonce(NewNonce())
	require.NoError(t, err)

	p := &Payload{Message: `{"signer_id":"escrow.near"}`, Nonce: nonce, Recipient: "intents.near"}
	sig, err := Sign(p, key)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(sig.Signature, "ed25519:"))
	require.True(t, strings.HasPrefix(sig.PublicKey, "ed25519:"))

	rawSig, err := base58.Decode(strings.TrimPrefix(sig.Signature, "ed25519:"))
	require.NoError(t, err)
	hash, err := p.Hash()
	require.NoError(t, err)

	pub := key.Public().(ed25519.PublicKey)
	assert.True(t, ed25519.Verify(pub, hash[:], rawSig))
}

func TestSignDeterministic(t *testing.T) {
	key := testKey(t)
	p := &Payload{Message: "same", Recipient: "intents.near"}

	first, err := Sign(p, key)
	require.NoError(t, err)
	second, err := Sign(p, key)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseNoncePadsShortValues(t *testing.T) {
	short := []byte("0123456789") // 10 bytes
	nonce, err := ParseNonce(base64.StdEncoding.EncodeToString(short))
	require.NoError(t, err)

	assert.Equal(t, short, nonce[:10])
	assert.Equal(t, make([]byte, 22), nonce[10:])
}

func TestParseNonceRejectsLongValues(t *testing.T) {
	long := bytes.Repeat([]byte{0xab}, 40)
	_, err := ParseNonce(base64.StdEncoding.EncodeToString(long))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "40 bytes")
}

func TestParseNonceExact(t *testing.T) {
	exact := bytes.Repeat([]byte{0xcd}, 32)
	nonce, err := ParseNonce(base64.StdEncoding.EncodeToString(exact))
	require.NoError(t, err)
	assert.Equal(t, exact, nonce[:])
}

func TestParseNonceBadBase64(t *testing.T) {
	_, err := ParseNonce("!!! not base64 !!!")
	require.Error(t, err)
}

func TestNewNonce(t *testing.T) {
	nonce := NewNonce()
	b, err := base64.StdEncoding.DecodeString(nonce)
	require.NoError(t, err)
	assert.Len(t, b, sha256.Size)
}
