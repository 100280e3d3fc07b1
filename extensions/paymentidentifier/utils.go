package paymentidentifier

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID generates a unique payment identifier with the given prefix.
// If prefix is empty, "pay_" is used.
//
// The generated ID format is: prefix + UUID v4 without hyphens (32 hex chars)
// Example: "pay_7d5d747be1604e28904c099d984bcfe0"
func GenerateID(prefix string) string {
	if prefix == "" {
		prefix = "pay_"
	}
	return prefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidID validates that a payment ID meets the format requirements:
// 16-128 characters, alphanumeric plus hyphens and underscores.
func IsValidID(id string) bool {
	if len(id) < IDMinLength || len(id) > IDMaxLength {
		return false
	}
	return IDPattern.MatchString(id)
}
