package x402

import (
	"fmt"
	"strings"
)

// ProtocolVersion is the x402 protocol version this module speaks.
const ProtocolVersion = 2

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "eip155:84532" for Base Sepolia)
type Network string

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "eip155:84532" matches "eip155:*" and "eip155:*" matches "eip155:84532"
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	// Bidirectional: a registered wildcard also matches a concrete network
	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// PaymentRequirements defines one payment option a server will accept.
// Treated as immutable once constructed.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the 402 response body sent to clients
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PaymentPayload contains the signed payment authorization from a client.
// Built by the client, carried in a single call, consumed once by the server.
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// PartialPaymentPayload is the minimal payload returned by scheme clients.
// PaymentClient wraps it with accepted, resource and extensions.
type PartialPaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
}

// VerifyResponse contains the facilitator's verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse contains the facilitator's settlement result
type SettleResponse struct {
	Success     bool                   `json:"success"`
	ErrorReason string                 `json:"errorReason,omitempty"`
	Payer       string                 `json:"payer,omitempty"`
	Transaction string                 `json:"transaction"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}
