package neartx

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ed25519 is the only key type this codec issues. The byte is the borsh
// enum tag the chain decodes.
const keyTypeED25519 byte = 0

// PublicKey is an ed25519 public key in NEAR's tagged representation.
type PublicKey struct {
	Data [32]byte
}

// PublicKeyOf extracts the tagged public key from an ed25519 private key.
func PublicKeyOf(key ed25519.PrivateKey) PublicKey {
	var pk PublicKey
	copy(pk.Data[:], key.Public().(ed25519.PublicKey))
	return pk
}

// String renders the key in NEAR's display form, "ed25519:<base58>".
func (pk PublicKey) String() string {
	return "ed25519:" + base58.Encode(pk.Data[:])
}

// Signature is an ed25519 signature in NEAR's tagged representation.
type Signature struct {
	Data [64]byte
}

// String renders the signature as "ed25519:<base58>".
func (s Signature) String() string {
	return "ed25519:" + base58.Encode(s.Data[:])
}

// ParseKey decodes a NEAR ed25519 secret key: an optional "ed25519:" prefix
// followed by a base58 payload of either the 32-byte seed or the 64-byte
// seed concatenated with the public key.
func ParseKey(s string) (ed25519.PrivateKey, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "ed25519:")
	if raw == "" {
		return nil, fmt.Errorf("empty private key")
	}

	b, err := base58.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	switch len(b) {
	case ed25519.SeedSize, ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(b[:ed25519.SeedSize]), nil
	default:
		return nil, fmt.Errorf("private key must be 32 or 64 bytes, got %d", len(b))
	}
}
