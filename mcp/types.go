package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	x402 "github.com/sectionzeroinc/x402"
)

// ToolHandler is the function signature for MCP tool handlers.
// This is an alias for the official MCP SDK's mcp.ToolHandler type.
type ToolHandler = sdk.ToolHandler

// ResourceInfo provides resource metadata for a protected tool.
type ResourceInfo struct {
	URL         string
	Description string
	MimeType    string
}

// PaymentWrapperConfig configures the payment wrapper for an MCP tool.
type PaymentWrapperConfig struct {
	// Accepts is the list of accepted payment requirements. The first entry
	// is authoritative for verification and settlement; the full list is
	// advertised to clients on every 402.
	Accepts []x402.PaymentRequirements

	// Resource is optional metadata about the tool being protected.
	// Defaults to mcp://tool/{toolName}, "Tool: {toolName}", "application/json".
	Resource *ResourceInfo

	// Extensions is advertised in 402 responses (e.g. the payment-identifier
	// declaration).
	Extensions map[string]interface{}

	// Hooks are optional lifecycle callbacks around tool execution.
	Hooks PaymentWrapperHooks
}

// PaymentWrapperHooks provides server-side lifecycle hooks. Absent entries
// are skipped. Hook errors are not caught by the wrapper; they surface as
// tool errors through the transport.
type PaymentWrapperHooks struct {
	// OnBeforeExecution runs after verification, before the handler.
	// Returning false blocks execution with a 402.
	OnBeforeExecution BeforeExecutionHook

	// OnAfterExecution runs after the handler, before settlement. Only its
	// error affects control flow. Its context's Result is the same
	// *CallToolResult the wrapper goes on to settle and return; the wrapper
	// does not copy it, so changes made through that pointer reach the caller.
	OnAfterExecution AfterExecutionHook

	// OnAfterSettlement runs only after a successful settle.
	OnAfterSettlement AfterSettlementHook
}

// ServerHookContext is provided to server-side hooks. Contexts are passed by
// value, so reassigning a field does not affect subsequent phases. The copy is
// shallow: the Arguments map is shared by all hooks of one call, and the maps
// inside Requirements and Payload are shared with the verify/settle calls.
type ServerHookContext struct {
	ToolName     string
	Arguments    map[string]interface{}
	Requirements x402.PaymentRequirements
	Payload      x402.PaymentPayload
}

// BeforeExecutionHook is called before tool execution; returning false aborts.
type BeforeExecutionHook func(ctx context.Context, hookCtx ServerHookContext) (bool, error)

// AfterExecutionContext extends ServerHookContext with the handler's result.
type AfterExecutionContext struct {
	ServerHookContext
	Result *sdk.CallToolResult
}

// AfterExecutionHook is called after tool execution.
type AfterExecutionHook func(ctx context.Context, hookCtx AfterExecutionContext) error

// SettlementContext extends ServerHookContext with the settlement response.
type SettlementContext struct {
	ServerHookContext
	Settlement x402.SettleResponse
}

// AfterSettlementHook is called after successful settlement.
type AfterSettlementHook func(ctx context.Context, hookCtx SettlementContext) error

// MCPCaller is the interface for making MCP tool calls.
// It is satisfied by the official MCP SDK's *mcp.ClientSession.
type MCPCaller interface {
	CallTool(ctx context.Context, params *sdk.CallToolParams) (*sdk.CallToolResult, error)
}

// ToolCallResult is the result of a paid MCP tool call.
type ToolCallResult struct {
	// Content is the list of content items from the tool response.
	Content []sdk.Content

	// IsError indicates whether the tool returned an error.
	IsError bool

	// PaymentResponse is the settlement response if the server attached one.
	PaymentResponse *x402.SettleResponse

	// PaymentMade indicates whether a payment was made during this call.
	PaymentMade bool

	// RawResult is the original MCP CallToolResult.
	RawResult *sdk.CallToolResult
}

// PaymentRequiredContext is provided to client-side payment hooks.
type PaymentRequiredContext struct {
	ToolName        string
	Arguments       map[string]interface{}
	PaymentRequired x402.PaymentRequired
}

// PaymentRequiredHookResult lets a payment-required hook take over payment
// creation or abort the call.
type PaymentRequiredHookResult struct {
	Payment *x402.PaymentPayload
	Abort   bool
}

// PaymentRequiredHook is called when a 402 response is received.
type PaymentRequiredHook func(ctx context.Context, hookCtx PaymentRequiredContext) (*PaymentRequiredHookResult, error)

// BeforePaymentHook is called before a payment payload is created.
type BeforePaymentHook func(ctx context.Context, hookCtx PaymentRequiredContext) error

// AfterPaymentContext is provided to after-payment hooks.
type AfterPaymentContext struct {
	ToolName       string
	PaymentPayload x402.PaymentPayload
	Result         *sdk.CallToolResult
	SettleResponse *x402.SettleResponse
}

// AfterPaymentHook is called after a paid retry completes.
type AfterPaymentHook func(ctx context.Context, hookCtx AfterPaymentContext) error

// Options configures client-side payment behavior.
type Options struct {
	// AutoPayment enables automatic payment when a tool requires one.
	// When nil, defaults to true.
	AutoPayment *bool

	// OnPaymentRequested is consulted before creating a payment. Return
	// (false, nil) to decline; the 402 result is then returned to the caller.
	OnPaymentRequested func(ctx context.Context, hookCtx PaymentRequiredContext) (bool, error)
}

// BoolPtr returns a pointer to the given bool value, for Options.AutoPayment.
func BoolPtr(b bool) *bool {
	return &b
}

// PaymentRequiredError is returned when payment is required but auto-payment
// is disabled or declined by a hook.
type PaymentRequiredError struct {
	Code            int
	Message         string
	PaymentRequired *x402.PaymentRequired
}

func (e *PaymentRequiredError) Error() string {
	return e.Message
}
