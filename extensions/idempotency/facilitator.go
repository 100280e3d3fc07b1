package idempotency

import (
	"context"
	"time"

	x402 "github.com/sectionzeroinc/x402"
)

// DefaultTTL is the default deduplication window for cached receipts.
const DefaultTTL = 10 * time.Minute

// Option configures the idempotent facilitator wrapper.
type Option func(*Facilitator)

// WithStore sets a custom settlement store (e.g. a Redis-backed one).
func WithStore(store SettlementStore) Option {
	return func(f *Facilitator) {
		f.store = store
	}
}

// WithTTL sets the cache TTL for the default in-memory store.
func WithTTL(ttl time.Duration) Option {
	return func(f *Facilitator) {
		f.ttl = ttl
	}
}

// WithKeyGenerator sets a custom deduplication key generator.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(f *Facilitator) {
		f.keyGen = gen
	}
}

// Facilitator wraps a FacilitatorClient with settlement deduplication.
// Verify calls pass through untouched.
type Facilitator struct {
	inner  x402.FacilitatorClient
	store  SettlementStore
	keyGen KeyGenerator
	ttl    time.Duration
}

// Wrap decorates a facilitator client with settlement idempotency.
func Wrap(inner x402.FacilitatorClient, opts ...Option) *Facilitator {
	f := &Facilitator{
		inner:  inner,
		keyGen: DefaultKeyGenerator,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.store == nil {
		f.store = NewInMemoryStore(f.ttl)
	}
	return f
}

// Verify passes through to the wrapped facilitator.
func (f *Facilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	return f.inner.Verify(ctx, payload, requirements)
}

// Settle deduplicates settlement attempts for the same payment. A cached
// receipt is returned without touching the facilitator; concurrent attempts
// for the same key wait for the first to finish. Failed settlements are not
// cached, so a legitimate retry still settles.
func (f *Facilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	key := f.keyGen(payload)
	if key == "" {
		return f.inner.Settle(ctx, payload, requirements)
	}

	status, cached, done := f.store.CheckAndMark(key)
	switch status {
	case StatusCached:
		return cached, nil
	case StatusInFlight:
		result, err := f.store.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// The in-flight attempt failed; settle ourselves.
		return f.Settle(ctx, payload, requirements)
	}

	response, err := f.inner.Settle(ctx, payload, requirements)
	if err != nil || !response.Success {
		f.store.Fail(key, done)
		return response, err
	}

	f.store.Complete(key, response, done)
	return response, nil
}
