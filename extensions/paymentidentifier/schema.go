package paymentidentifier

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema returns the JSON Schema for validating payment identifier info,
// compliant with JSON Schema Draft 2020-12. Servers publish it inside the
// extension declaration so clients can validate before paying.
func Schema() JSONSchema {
	return JSONSchema{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
		"properties": map[string]interface{}{
			"required": map[string]interface{}{
				"type": "boolean",
			},
			"id": map[string]interface{}{
				"type":      "string",
				"minLength": IDMinLength,
				"maxLength": IDMaxLength,
				"pattern":   "^[a-zA-Z0-9_-]+$",
			},
		},
		"required": []string{"required"},
	}
}

// Declare builds the extension record a server advertises in
// PaymentRequired.Extensions.
func Declare(required bool) Extension {
	return Extension{
		Info:   Info{Required: required},
		Schema: Schema(),
	}
}

// validateInfoAgainstSchema runs an info object through the declared schema.
// The info may come off the wire as a loose map; gojsonschema handles both.
func validateInfoAgainstSchema(info interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(map[string]interface{}(Schema())),
		gojsonschema.NewGoLoader(info),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed to run: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid payment-identifier info: %s", errs[0].String())
		}
		return fmt.Errorf("invalid payment-identifier info")
	}
	return nil
}
