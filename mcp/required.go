package mcp

import (
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	x402 "github.com/sectionzeroinc/x402"
)

// NewPaymentRequired builds the 402 response body advertising the accepted
// payment options for a resource.
func NewPaymentRequired(accepts []x402.PaymentRequirements, resource *x402.ResourceInfo, errorMsg string, extensions map[string]interface{}) x402.PaymentRequired {
	if errorMsg == "" {
		errorMsg = "Payment required"
	}
	return x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Error:       errorMsg,
		Resource:    resource,
		Accepts:     accepts,
		Extensions:  extensions,
	}
}

// PaymentRequiredResult wraps a PaymentRequired body into a tool result.
// The body is delivered both as structuredContent and as the JSON text of
// content[0], with isError set. The builder is pure; it performs no I/O.
func PaymentRequiredResult(pr x402.PaymentRequired) *sdk.CallToolResult {
	data, err := json.Marshal(pr)
	if err != nil {
		// PaymentRequired contains only JSON-encodable fields; this is
		// unreachable with well-formed requirements.
		data = []byte(`{"x402Version":2,"accepts":[],"error":"Payment required"}`)
	}

	var structured map[string]interface{}
	_ = json.Unmarshal(data, &structured)

	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.TextContent{Text: string(data)},
		},
		StructuredContent: structured,
		IsError:           true,
	}
}

// ExtractPaymentRequiredFromResult extracts a PaymentRequired from an error
// result. Prefers structuredContent, falls back to parsing content[i].text.
// Returns nil when the result does not carry a 402 body.
func ExtractPaymentRequiredFromResult(result *sdk.CallToolResult) *x402.PaymentRequired {
	if result == nil || !result.IsError {
		return nil
	}

	if result.StructuredContent != nil {
		if sc, ok := result.StructuredContent.(map[string]interface{}); ok {
			if hasPaymentRequiredShape(sc) {
				if pr := unmarshalPaymentRequired(sc); pr != nil {
					return pr
				}
			}
		}
	}

	for _, content := range result.Content {
		textContent, ok := content.(*sdk.TextContent)
		if !ok {
			continue
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(textContent.Text), &parsed); err != nil {
			continue
		}
		if !hasPaymentRequiredShape(parsed) {
			continue
		}
		if pr := unmarshalPaymentRequired(parsed); pr != nil {
			return pr
		}
	}

	return nil
}

// hasPaymentRequiredShape requires both "accepts" and a numeric
// "x402Version" >= 1.
func hasPaymentRequiredShape(obj map[string]interface{}) bool {
	if _, ok := obj["accepts"]; !ok {
		return false
	}
	switch v := obj["x402Version"].(type) {
	case float64:
		return v >= 1
	case int:
		return v >= 1
	default:
		return false
	}
}

// unmarshalPaymentRequired converts a map to PaymentRequired via JSON roundtrip.
func unmarshalPaymentRequired(obj map[string]interface{}) *x402.PaymentRequired {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	var pr x402.PaymentRequired
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil
	}
	return &pr
}
