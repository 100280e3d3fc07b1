// Package mcp provides MCP (Model Context Protocol) transport integration for
// the x402 payment protocol.
//
// Server-side: NewPaymentWrapper wraps MCP tool handlers with x402 payment
// verification and settlement. Client-side: CallPaidTool (or a configured
// Client) makes tool calls with automatic payment handling.
//
// # Server Usage
//
//	wrapper := mcp402.NewPaymentWrapper(facilitatorClient, mcp402.PaymentWrapperConfig{
//	    Accepts: []x402.PaymentRequirements{{
//	        Scheme:  "exact",
//	        Network: "eip155:84532",
//	        Amount:  "100000",
//	        Asset:   "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
//	        PayTo:   "0xPayee",
//	    }},
//	})
//
//	mcpServer.AddTool(weatherTool, wrapper.Wrap(func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
//	    return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "result"}}}, nil
//	}))
//
// # Client Usage
//
//	paymentClient := x402.NewPaymentClient().
//	    Register("eip155:*", evmScheme)
//
//	result, err := mcp402.CallPaidTool(ctx, session, paymentClient, "get_weather", map[string]any{"city": "SF"})
//
// Payment payloads travel in the request's _meta under "x402/payment";
// settlement receipts come back in the result's _meta under
// "x402/payment-response".
package mcp
