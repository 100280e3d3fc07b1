package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	x402 "github.com/sectionzeroinc/x402"
	"github.com/sectionzeroinc/x402/extensions/paymentidentifier"
)

// SettlementStatus represents the result of checking the store.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight request.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is currently settling this payment.
	StatusInFlight
)

// SettlementStore defines the interface for settlement idempotency storage.
// Implementations must be safe for concurrent use.
type SettlementStore interface {
	// CheckAndMark atomically checks the store and marks the key as in-flight
	// if needed.
	//
	// Returns:
	//   - StatusCached + result: a cached receipt exists, return it immediately
	//   - StatusInFlight + done: another request is settling, wait on done
	//   - StatusNotFound + done: this request should proceed (now in-flight)
	//
	// The done channel must be handed back to Complete or Fail.
	CheckAndMark(key string) (SettlementStatus, *x402.SettleResponse, chan struct{})

	// WaitForResult waits for an in-flight settlement to finish, respecting
	// context cancellation. A nil result means the in-flight attempt failed
	// and the caller should settle itself.
	WaitForResult(ctx context.Context, key string, done chan struct{}) (*x402.SettleResponse, error)

	// Complete caches the receipt and signals waiters.
	Complete(key string, response *x402.SettleResponse, done chan struct{})

	// Fail removes the in-flight marker without caching, so waiters retry.
	Fail(key string, done chan struct{})
}

// KeyGenerator derives the deduplication key for a settlement attempt.
type KeyGenerator func(payload x402.PaymentPayload) string

// DefaultKeyGenerator keys settlements by the payment-identifier extension
// when present; otherwise by a SHA-256 fingerprint of the payload, which
// includes the scheme signature and nonce.
func DefaultKeyGenerator(payload x402.PaymentPayload) string {
	if id, err := paymentidentifier.Extract(payload, true); err == nil && id != "" {
		return id
	}
	return Fingerprint(payload)
}

// Fingerprint computes a deterministic SHA-256 hash of a payment payload.
// Two payloads with the same payment ID but different fingerprints carry
// conflicting content.
func Fingerprint(payload x402.PaymentPayload) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
