// Package nep413 signs off-ledger messages under the NEP-413 standard.
// The signing preimage is a 4-byte discriminant followed by the borsh
// payload, hashed with SHA-256 and signed with ed25519. The discriminant
// (2^31 + 413) keeps these signatures outside the valid transaction space.
package nep413

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"intent-swap/pkg/borsh"
)

const payloadTag uint32 = 1<<31 + 413

// Payload is the message to sign.
type Payload struct {
	Message     string
	Nonce       [32]byte
	Recipient   string
	CallbackURL *string
}

// Encode returns the tagged signing preimage.
func (p *Payload) Encode() ([]byte, error) {
	var w borsh.Writer
	w.U32(payloadTag)
	w.String(p.Message)
	w.Raw(p.Nonce[:])
	w.String(p.Recipient)
	w.OptionString(p.CallbackURL)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return w.Bytes(), nil
}

// Hash returns the SHA-256 digest the signature covers.
func (p *Payload) Hash() ([32]byte, error) {
	raw, err := p.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw), nil
}

// Signature carries the signature and public key in the display form the
// Intents venue expects.
type Signature struct {
	Signature string
	PublicKey string
}

// Sign hashes the payload and signs the digest.
func Sign(p *Payload, key ed25519.PrivateKey) (*Signature, error) {
	hash, err := p.Hash()
	if err != nil {
		return nil, err
	}

	sig := ed25519.Sign(key, hash[:])
	pub := key.Public().(ed25519.PublicKey)
	return &Signature{
		Signature: "ed25519:" + base58.Encode(sig),
		PublicKey: "ed25519:" + base58.Encode(pub),
	}, nil
}

// ParseNonce decodes a base64 nonce. Values shorter than 32 bytes are
// right-padded with zeros; longer values are rejected.
func ParseNonce(s string) ([32]byte, error) {
	var nonce [32]byte
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nonce, fmt.Errorf("failed to decode nonce: %w", err)
	}
	if len(b) > len(nonce) {
		return nonce, fmt.Errorf("nonce is %d bytes, must be at most 32", len(b))
	}
	copy(nonce[:], b)
	return nonce, nil
}

// NewNonce returns a fresh base64 nonce derived from the nanosecond clock.
func NewNonce() string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(time.Now().UnixNano(), 10)))
	return base64.StdEncoding.EncodeToString(sum[:])
}
