package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	x402 "github.com/sectionzeroinc/x402"
)

// PaymentWrapper wraps MCP tool handlers with x402 payment verification and
// settlement. It holds no per-call state; a single wrapper serves overlapping
// calls.
type PaymentWrapper struct {
	facilitator x402.FacilitatorClient
	config      PaymentWrapperConfig
}

// NewPaymentWrapper creates a payment wrapper for MCP tool handlers.
// An empty Accepts list is a configuration error and panics at construction.
func NewPaymentWrapper(facilitator x402.FacilitatorClient, config PaymentWrapperConfig) *PaymentWrapper {
	if len(config.Accepts) == 0 {
		panic("PaymentWrapperConfig.Accepts must have at least one payment requirement")
	}
	return &PaymentWrapper{facilitator: facilitator, config: config}
}

// Wrap turns a tool handler into a payment-gated handler suitable for
// mcpServer.AddTool().
//
// Flow for one call:
//  1. Extract x402/payment from request _meta; absent or malformed -> 402
//  2. Verify against Accepts[0] via the facilitator; invalid -> 402
//  3. Run OnBeforeExecution; a false return blocks with a 402
//  4. Execute the handler; handler errors propagate, error results skip settle
//  5. Settle via the facilitator; failure -> 402 without a receipt
//  6. Attach the settlement response to the result _meta
//
// Verify runs before the handler so no free work is done on bad payment;
// settle runs after so buyers are not charged for failed work.
func (w *PaymentWrapper) Wrap(handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		toolName := w.toolName(request)

		payload := ExtractPaymentFromRequest(request)
		if payload == nil {
			return w.paymentRequiredResult(toolName, "Payment required to access this tool"), nil
		}

		// The first requirement is authoritative; the rest of the list is
		// informational to clients. The facilitator is the authority on
		// scheme/network match criteria.
		requirements := w.config.Accepts[0]

		verifyResp, err := w.facilitator.Verify(ctx, *payload, requirements)
		if err != nil {
			return w.paymentRequiredResult(toolName, fmt.Sprintf("Payment verification error: %v", err)), nil
		}
		if !verifyResp.IsValid {
			reason := verifyResp.InvalidReason
			if reason == "" {
				reason = "Payment verification failed"
			}
			return w.paymentRequiredResult(toolName, reason), nil
		}

		hookCtx := ServerHookContext{
			ToolName:     toolName,
			Arguments:    decodeArguments(request),
			Requirements: requirements,
			Payload:      *payload,
		}

		if hook := w.config.Hooks.OnBeforeExecution; hook != nil {
			proceed, err := hook(ctx, hookCtx)
			if err != nil {
				return nil, err
			}
			if !proceed {
				return w.paymentRequiredResult(toolName, "Execution blocked by hook"), nil
			}
		}

		result, err := handler(ctx, request)
		if err != nil {
			return result, err
		}

		if hook := w.config.Hooks.OnAfterExecution; hook != nil {
			if err := hook(ctx, AfterExecutionContext{ServerHookContext: hookCtx, Result: result}); err != nil {
				return nil, err
			}
		}

		// Tool-level errors skip settlement entirely.
		if result.IsError {
			return result, nil
		}

		// A connection dropped after the handler must not be settled: the
		// client cannot receive the receipt.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		settleResp, err := w.facilitator.Settle(ctx, *payload, requirements)
		if err != nil {
			return w.settlementFailedResult(toolName, err.Error()), nil
		}
		if !settleResp.Success {
			reason := settleResp.ErrorReason
			if reason == "" {
				reason = "settlement rejected by facilitator"
			}
			return w.settlementFailedResult(toolName, reason), nil
		}

		if hook := w.config.Hooks.OnAfterSettlement; hook != nil {
			if err := hook(ctx, SettlementContext{ServerHookContext: hookCtx, Settlement: *settleResp}); err != nil {
				return nil, err
			}
		}

		AttachSettlementToResult(result, *settleResp)

		return result, nil
	}
}

// toolName resolves the tool name from the transport request, falling back to
// the configured resource URL and finally to a generic name.
func (w *PaymentWrapper) toolName(request *sdk.CallToolRequest) string {
	if request != nil && request.Params != nil && request.Params.Name != "" {
		return request.Params.Name
	}
	if w.config.Resource != nil {
		if name, ok := strings.CutPrefix(w.config.Resource.URL, "mcp://tool/"); ok && name != "" {
			return name
		}
	}
	return "paid_tool"
}

// resourceInfo builds the advertised resource info, applying defaults.
func (w *PaymentWrapper) resourceInfo(toolName string) *x402.ResourceInfo {
	info := &x402.ResourceInfo{
		Description: "Tool: " + toolName,
		MimeType:    "application/json",
	}
	override := ""
	if w.config.Resource != nil {
		override = w.config.Resource.URL
		if w.config.Resource.Description != "" {
			info.Description = w.config.Resource.Description
		}
		if w.config.Resource.MimeType != "" {
			info.MimeType = w.config.Resource.MimeType
		}
	}
	info.URL = ToolResourceURL(toolName, override)
	return info
}

// paymentRequiredResult builds the 402 advertisement for this tool.
func (w *PaymentWrapper) paymentRequiredResult(toolName, errorMsg string) *sdk.CallToolResult {
	pr := NewPaymentRequired(w.config.Accepts, w.resourceInfo(toolName), errorMsg, w.config.Extensions)
	return PaymentRequiredResult(pr)
}

// settlementFailedResult builds the 402 for a failed settle. The body never
// embeds a SettleResponse; a client seeing this result must not pay again.
func (w *PaymentWrapper) settlementFailedResult(toolName, errorMsg string) *sdk.CallToolResult {
	return w.paymentRequiredResult(toolName, "Payment settlement failed: "+errorMsg)
}

// decodeArguments decodes the raw call arguments for hook contexts.
func decodeArguments(request *sdk.CallToolRequest) map[string]interface{} {
	if request == nil || request.Params == nil || len(request.Params.Arguments) == 0 {
		return nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
		return nil
	}
	return args
}
