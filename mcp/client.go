package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	x402 "github.com/sectionzeroinc/x402"
	"github.com/sectionzeroinc/x402/extensions/paymentidentifier"
)

// Client wraps an MCP caller with automatic x402 payment handling.
type Client struct {
	caller        MCPCaller
	paymentClient *x402.PaymentClient
	options       Options

	paymentRequiredHooks []PaymentRequiredHook
	beforePaymentHooks   []BeforePaymentHook
	afterPaymentHooks    []AfterPaymentHook
}

// NewClient creates a payment-aware MCP client around an existing session.
func NewClient(caller MCPCaller, paymentClient *x402.PaymentClient, options Options) *Client {
	return &Client{
		caller:        caller,
		paymentClient: paymentClient,
		options:       options,
	}
}

// PaymentClient returns the underlying x402 payment client.
func (c *Client) PaymentClient() *x402.PaymentClient {
	return c.paymentClient
}

// OnPaymentRequired registers a hook for payment required events. The hook may
// supply its own payment payload or abort the call.
func (c *Client) OnPaymentRequired(hook PaymentRequiredHook) *Client {
	c.paymentRequiredHooks = append(c.paymentRequiredHooks, hook)
	return c
}

// OnBeforePayment registers a hook invoked before payment creation.
func (c *Client) OnBeforePayment(hook BeforePaymentHook) *Client {
	c.beforePaymentHooks = append(c.beforePaymentHooks, hook)
	return c
}

// OnAfterPayment registers a hook invoked after a paid retry completes.
func (c *Client) OnAfterPayment(hook AfterPaymentHook) *Client {
	c.afterPaymentHooks = append(c.afterPaymentHooks, hook)
	return c
}

func (c *Client) autoPayment() bool {
	if c.options.AutoPayment == nil {
		return true
	}
	return *c.options.AutoPayment
}

// CallTool calls a tool with automatic payment handling.
//
// Flow:
//  1. Call the tool without payment
//  2. On a payment-required error result, build a payment for accepts[0]
//  3. Retry exactly once with the payment attached in _meta
//
// A second 402 after paying is returned verbatim; the caller decides.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolCallResult, error) {
	params := &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	}

	result, err := c.caller.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	if !result.IsError {
		return buildToolCallResult(result, false), nil
	}

	paymentRequired := ExtractPaymentRequiredFromResult(result)
	if paymentRequired == nil || len(paymentRequired.Accepts) == 0 {
		// Not a 402 (or an unpayable one): hand the error result back.
		return buildToolCallResult(result, false), nil
	}

	hookCtx := PaymentRequiredContext{
		ToolName:        name,
		Arguments:       args,
		PaymentRequired: *paymentRequired,
	}

	for _, hook := range c.paymentRequiredHooks {
		hookResult, err := hook(ctx, hookCtx)
		if err != nil {
			return nil, fmt.Errorf("payment required hook error: %w", err)
		}
		if hookResult != nil {
			if hookResult.Abort {
				return nil, &PaymentRequiredError{
					Code:            PaymentRequiredCode,
					Message:         "Payment aborted by hook",
					PaymentRequired: paymentRequired,
				}
			}
			if hookResult.Payment != nil {
				return c.CallToolWithPayment(ctx, name, args, *hookResult.Payment)
			}
		}
	}

	if !c.autoPayment() {
		return nil, &PaymentRequiredError{
			Code:            PaymentRequiredCode,
			Message:         "Payment required",
			PaymentRequired: paymentRequired,
		}
	}

	if c.options.OnPaymentRequested != nil {
		approved, err := c.options.OnPaymentRequested(ctx, hookCtx)
		if err != nil {
			return nil, fmt.Errorf("payment request hook error: %w", err)
		}
		if !approved {
			return buildToolCallResult(result, false), nil
		}
	}

	for _, hook := range c.beforePaymentHooks {
		if err := hook(ctx, hookCtx); err != nil {
			return nil, fmt.Errorf("before payment hook error: %w", err)
		}
	}

	extensions, err := extensionsForPayment(paymentRequired.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare payment extensions: %w", err)
	}

	payload, err := c.paymentClient.CreatePaymentPayload(ctx, paymentRequired.Accepts[0], paymentRequired.Resource, extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	return c.CallToolWithPayment(ctx, name, args, payload)
}

// CallToolWithPayment calls a tool with an explicit payment payload attached.
func (c *Client) CallToolWithPayment(ctx context.Context, name string, args map[string]interface{}, payload x402.PaymentPayload) (*ToolCallResult, error) {
	params := &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	}
	AttachPaymentToParams(params, payload)

	result, err := c.caller.CallTool(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("paid tool call failed: %w", err)
	}

	callResult := buildToolCallResult(result, true)

	afterCtx := AfterPaymentContext{
		ToolName:       name,
		PaymentPayload: payload,
		Result:         result,
		SettleResponse: callResult.PaymentResponse,
	}
	for _, hook := range c.afterPaymentHooks {
		// Observational; a failing hook must not mask a delivered result.
		_ = hook(ctx, afterCtx)
	}

	return callResult, nil
}

// GetToolPaymentRequirements probes a tool for its payment requirements.
// WARNING: this calls the tool, so it may have side effects on free tools.
func (c *Client) GetToolPaymentRequirements(ctx context.Context, name string, args map[string]interface{}) (*x402.PaymentRequired, error) {
	result, err := c.caller.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}
	return ExtractPaymentRequiredFromResult(result), nil
}

// CallPaidTool makes a one-shot MCP tool call with automatic payment handling,
// using default options (auto-payment on, no approval callback).
//
// Example:
//
//	result, err := mcp402.CallPaidTool(ctx, session, paymentClient, "get_weather", map[string]any{"city": "SF"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.PaymentResponse.Transaction)
func CallPaidTool(
	ctx context.Context,
	caller MCPCaller,
	paymentClient *x402.PaymentClient,
	name string,
	args map[string]interface{},
) (*ToolCallResult, error) {
	return NewClient(caller, paymentClient, Options{}).CallTool(ctx, name, args)
}

// buildToolCallResult converts an MCP CallToolResult into a ToolCallResult.
func buildToolCallResult(result *sdk.CallToolResult, paymentMade bool) *ToolCallResult {
	return &ToolCallResult{
		Content:         result.Content,
		IsError:         result.IsError,
		PaymentResponse: ExtractPaymentResponseFromMeta(result.Meta),
		PaymentMade:     paymentMade,
		RawResult:       result,
	}
}

// extensionsForPayment prepares the extensions map for payload creation. When
// the server declared the payment-identifier extension, a generated ID is
// merged in; the server's copy is never mutated.
func extensionsForPayment(declared map[string]interface{}) (map[string]interface{}, error) {
	if declared == nil {
		return nil, nil
	}

	extensions := make(map[string]interface{}, len(declared))
	for k, v := range declared {
		extensions[k] = v
	}

	if err := paymentidentifier.AppendToExtensions(extensions, ""); err != nil {
		return nil, err
	}

	return extensions, nil
}
