// Package idempotency provides settlement deduplication as an opt-in wrapper
// around a FacilitatorClient.
//
// The core wrapper never retries settle on its own, but clients and proxies
// may retry whole tool calls during the pending confirmation window. Wrapping
// the facilitator client deduplicates those retries: a repeated settle for the
// same payment returns the cached receipt instead of moving money twice.
//
// Settlements are keyed by the payment-identifier extension when the payload
// carries one, falling back to a SHA-256 fingerprint of the payload.
//
//	facilitator := idempotency.Wrap(httpFacilitator, idempotency.WithTTL(10*time.Minute))
//
// Failed settlements are not cached, so legitimate retries still reach the
// facilitator. For distributed deployments implement SettlementStore with a
// shared backend; the in-memory store suits single instances.
package idempotency
