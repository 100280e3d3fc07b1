package paymentidentifier

import (
	"encoding/json"
	"fmt"

	x402 "github.com/sectionzeroinc/x402"
)

// Extract returns the payment identifier carried in a PaymentPayload, or the
// empty string if the extension is absent. With validate set, a malformed ID
// is an error; without it the raw value is returned.
func Extract(payload x402.PaymentPayload, validate bool) (string, error) {
	if payload.Extensions == nil {
		return "", nil
	}

	declared, ok := payload.Extensions[ExtensionKey]
	if !ok {
		return "", nil
	}

	ext, err := toExtension(declared)
	if err != nil {
		return "", err
	}

	if ext.Info.ID == "" {
		return "", nil
	}

	if validate && !IsValidID(ext.Info.ID) {
		return "", fmt.Errorf("invalid payment ID format")
	}

	return ext.Info.ID, nil
}

// Has reports whether a PaymentPayload carries the payment-identifier
// extension.
func Has(payload x402.PaymentPayload) bool {
	if payload.Extensions == nil {
		return false
	}
	_, ok := payload.Extensions[ExtensionKey]
	return ok
}

// IsRequired reads the required flag from an extension object, robustly
// against both typed structs and objects reconstructed from JSON.
func IsRequired(extension interface{}) bool {
	if extension == nil {
		return false
	}
	ext, err := toExtension(extension)
	if err != nil {
		return false
	}
	return ext.Info.Required
}

// Validate checks an extension object structurally (against the published
// JSON Schema) and, when an ID is present, checks its format.
func Validate(extension interface{}) ValidationResult {
	if extension == nil {
		return ValidationResult{Valid: false, Errors: []string{"Extension must be an object"}}
	}

	ext, err := toExtension(extension)
	if err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}

	// Check the info object as it arrived: the typed conversion above would
	// fill in a missing or mistyped required flag with false.
	var probe struct {
		Info map[string]interface{} `json:"info"`
	}
	if raw, err := json.Marshal(extension); err == nil {
		_ = json.Unmarshal(raw, &probe)
	}
	if err := validateInfoAgainstSchema(map[string]interface{}{
		"required": probe.Info["required"],
	}); err != nil {
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}

	if ext.Info.ID != "" && !IsValidID(ext.Info.ID) {
		return ValidationResult{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"Invalid payment ID format. ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores.",
				IDMinLength, IDMaxLength,
			)},
		}
	}

	return ValidationResult{Valid: true}
}

// ValidateRequirement asserts that a payload carries a well-formed ID when the
// server requires one.
func ValidateRequirement(payload x402.PaymentPayload, required bool) error {
	if !required {
		return nil
	}

	id, err := Extract(payload, false)
	if err != nil {
		return fmt.Errorf("failed to extract payment identifier: %w", err)
	}

	if id == "" {
		return fmt.Errorf("server requires a payment identifier but none was provided")
	}

	if !IsValidID(id) {
		return fmt.Errorf(
			"invalid payment ID format: ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores",
			IDMinLength, IDMaxLength,
		)
	}

	return nil
}
