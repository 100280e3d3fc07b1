package paymentidentifier

import "regexp"

// ExtensionKey is the key under which this extension lives in extensions maps.
const ExtensionKey = "payment-identifier"

// Payment ID format constraints.
const (
	IDMinLength = 16
	IDMaxLength = 128
)

// IDPattern matches the allowed payment ID alphabet.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// JSONSchema is a loose representation of a JSON Schema document.
type JSONSchema map[string]interface{}

// Info contains the server's required flag and the client-provided ID.
type Info struct {
	Required bool   `json:"required"`
	ID       string `json:"id,omitempty"`
}

// Extension is the full payment-identifier extension record.
type Extension struct {
	Info   Info       `json:"info"`
	Schema JSONSchema `json:"schema"`
}

// ValidationResult reports the outcome of validating an extension object.
type ValidationResult struct {
	Valid  bool
	Errors []string
}
