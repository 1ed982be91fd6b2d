package solver

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"intent-swap/pkg/nep413"
)

// WithdrawValidity is how long a withdrawal intent stays publishable.
const WithdrawValidity = 180 * time.Second

// IntentMessage is the JSON text the account signs. Field order is part of
// the signed bytes, so the struct order stays fixed.
type IntentMessage struct {
	SignerID string         `json:"signer_id"`
	Deadline string         `json:"deadline"`
	Intents  []IntentAction `json:"intents"`
}

// IntentAction is one entry of an intent message. Intent selects the kind;
// the populated fields depend on it.
type IntentAction struct {
	Intent     string            `json:"intent"`
	Diff       map[string]string `json:"diff,omitempty"`
	Token      string            `json:"token,omitempty"`
	ReceiverID string            `json:"receiver_id,omitempty"`
	Amount     string            `json:"amount,omitempty"`
}

// TokenDiffMessage builds the swap intent text: give amountIn of assetIn,
// take amountOut of assetOut, valid until the quote's expiration deadline.
// Asset ids keep their venue prefix in the diff.
func TokenDiffMessage(signerID, deadline, assetIn, amountIn, assetOut, amountOut string) (string, error) {
	msg := IntentMessage{
		SignerID: signerID,
		Deadline: deadline,
		Intents: []IntentAction{{
			Intent: "token_diff",
			Diff: map[string]string{
				assetIn:  "-" + amountIn,
				assetOut: amountOut,
			},
		}},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal intent message: %w", err)
	}
	return string(b), nil
}

// WithdrawMessage builds the withdrawal intent text moving amount of token
// from venue custody to the receiver. Unlike token_diff, ft_withdraw takes
// the bare token contract id without the venue prefix.
func WithdrawMessage(signerID, deadline, token, receiverID, amount string) (string, error) {
	msg := IntentMessage{
		SignerID: signerID,
		Deadline: deadline,
		Intents: []IntentAction{{
			Intent:     "ft_withdraw",
			Token:      strings.TrimPrefix(token, "nep141:"),
			ReceiverID: receiverID,
			Amount:     amount,
		}},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal withdraw message: %w", err)
	}
	return string(b), nil
}

// WithdrawDeadline returns a deadline the given duration from now, rendered
// the way the venue expects: UTC with millisecond precision.
func WithdrawDeadline(d time.Duration) string {
	return time.Now().UTC().Add(d).Format("2006-01-02T15:04:05.000Z")
}

// SignIntent wraps a message in a fresh-nonce NEP-413 envelope signed by
// the key.
func SignIntent(message, recipient string, key ed25519.PrivateKey) (SignedData, error) {
	nonceB64 := nep413.NewNonce()
	nonce, err := nep413.ParseNonce(nonceB64)
	if err != nil {
		return SignedData{}, err
	}

	sig, err := nep413.Sign(&nep413.Payload{
		Message:   message,
		Nonce:     nonce,
		Recipient: recipient,
	}, key)
	if err != nil {
		return SignedData{}, err
	}

	return SignedData{
		Payload:   Payload{Message: message, Nonce: nonceB64, Recipient: recipient},
		Standard:  "nep413",
		Signature: sig.Signature,
		PublicKey: sig.PublicKey,
	}, nil
}

// PublishSigned signs the message against the venue custody account and
// publishes it in one step.
func (c *Client) PublishSigned(ctx context.Context, message string, key ed25519.PrivateKey, quoteHashes []string) (string, error) {
	signed, err := SignIntent(message, c.Contract, key)
	if err != nil {
		return "", err
	}
	return c.PublishIntent(ctx, signed, quoteHashes)
}
