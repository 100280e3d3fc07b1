package paymentidentifier

import (
	"encoding/json"
	"fmt"
)

// AppendToExtensions appends a payment identifier to the extensions object if
// the server declared support for the payment-identifier extension.
//
// The function reads the server's declaration from the extensions map and sets
// the client's ID on it. If the key is absent (the server did not declare the
// extension) the map is left unchanged; that makes the call a safe no-op on
// servers that do not understand identifiers.
//
// Pass an empty id to have one generated.
func AppendToExtensions(extensions map[string]interface{}, id string) error {
	if extensions == nil {
		return nil
	}

	declared, ok := extensions[ExtensionKey]
	if !ok {
		return nil
	}

	// Only append onto a structurally valid declaration.
	if !IsExtension(declared) {
		return nil
	}

	paymentID := id
	if paymentID == "" {
		paymentID = GenerateID("")
	}

	if !IsValidID(paymentID) {
		return fmt.Errorf(
			"invalid payment ID: %q. ID must be %d-%d characters and contain only alphanumeric characters, hyphens, and underscores",
			paymentID, IDMinLength, IDMaxLength,
		)
	}

	ext, err := toExtension(declared)
	if err != nil {
		return err
	}
	ext.Info.ID = paymentID
	extensions[ExtensionKey] = ext

	return nil
}

// IsExtension checks whether an object has the payment-identifier extension
// structure (an info object carrying a required boolean). It does not validate
// the id format.
func IsExtension(extension interface{}) bool {
	if extension == nil {
		return false
	}

	raw, err := json.Marshal(extension)
	if err != nil {
		return false
	}

	var probe struct {
		Info *struct {
			Required *bool `json:"required"`
		} `json:"info"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}

	return probe.Info != nil && probe.Info.Required != nil
}

// toExtension converts a declaration (typed struct or loose map) to Extension.
func toExtension(value interface{}) (Extension, error) {
	if ext, ok := value.(Extension); ok {
		return ext, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return Extension{}, fmt.Errorf("failed to marshal extension: %w", err)
	}

	var ext Extension
	if err := json.Unmarshal(raw, &ext); err != nil {
		return Extension{}, fmt.Errorf("failed to unmarshal extension: %w", err)
	}

	return ext, nil
}
