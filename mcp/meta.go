package mcp

import (
	"encoding/json"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	x402 "github.com/sectionzeroinc/x402"
)

// ExtractPaymentFromRequest extracts the x402 payment payload from a tool call
// request's _meta. Malformed or missing values yield nil; the wrapper then
// follows the no-payment path and the peer receives a 402.
func ExtractPaymentFromRequest(request *sdk.CallToolRequest) *x402.PaymentPayload {
	if request == nil || request.Params == nil || request.Params.Meta == nil {
		return nil
	}
	return decodePaymentValue(request.Params.Meta[PaymentMetaKey])
}

// decodePaymentValue converts a _meta value into a PaymentPayload, tolerating
// both the typed struct (in-process) and the loose map (off the wire).
func decodePaymentValue(value interface{}) *x402.PaymentPayload {
	switch v := value.(type) {
	case nil:
		return nil
	case x402.PaymentPayload:
		if v.X402Version == 0 || v.Payload == nil {
			return nil
		}
		return &v
	case *x402.PaymentPayload:
		if v == nil || v.X402Version == 0 || v.Payload == nil {
			return nil
		}
		payload := *v
		return &payload
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if payload.X402Version == 0 || payload.Payload == nil {
		return nil
	}
	return &payload
}

// AttachPaymentToParams attaches a payment payload to call params under the
// x402/payment meta key. Pre-existing meta keys are preserved.
func AttachPaymentToParams(params *sdk.CallToolParams, payload x402.PaymentPayload) {
	meta := sdk.Meta{}
	for k, v := range params.Meta {
		meta[k] = v
	}
	meta[PaymentMetaKey] = payload
	params.Meta = meta
}

// AttachSettlementToResult sets the settlement response on the result's _meta,
// creating the map if missing. Other meta keys are preserved.
func AttachSettlementToResult(result *sdk.CallToolResult, settle x402.SettleResponse) {
	if result.Meta == nil {
		result.Meta = sdk.Meta{}
	}
	result.Meta[PaymentResponseMetaKey] = settle
}

// ExtractPaymentResponseFromMeta extracts a settlement response from a result
// _meta map, tolerating both the typed struct and its JSON map form.
func ExtractPaymentResponseFromMeta(meta sdk.Meta) *x402.SettleResponse {
	if meta == nil {
		return nil
	}

	value, ok := meta[PaymentResponseMetaKey]
	if !ok {
		return nil
	}

	switch v := value.(type) {
	case x402.SettleResponse:
		return &v
	case *x402.SettleResponse:
		if v == nil {
			return nil
		}
		settle := *v
		return &settle
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}

	var settle x402.SettleResponse
	if err := json.Unmarshal(raw, &settle); err != nil {
		return nil
	}
	return &settle
}

// ToolResourceURL returns the resource URL for an MCP tool: the override if
// provided, else mcp://tool/{toolName}.
func ToolResourceURL(toolName, override string) string {
	if override != "" {
		return override
	}
	return "mcp://tool/" + toolName
}
