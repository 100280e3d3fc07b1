// Package paymentidentifier implements the payment-identifier extension for x402.
//
// The extension enables clients to provide an idempotency key that resource
// servers and facilitators can use for deduplication of payment requests. The
// key travels under "payment-identifier" in the extensions map of both
// PaymentRequired and PaymentPayload.
//
// Server-side (declaring the extension):
//
//	extensions := map[string]interface{}{
//	    paymentidentifier.ExtensionKey: paymentidentifier.Declare(true),
//	}
//
// Client-side (appending the identifier):
//
//	err := paymentidentifier.AppendToExtensions(extensions, "")
//	// A new ID is generated when the empty string is passed
//
// Facilitator-side (extracting and validating):
//
//	id, err := paymentidentifier.Extract(payload, true)
package paymentidentifier
