package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/sectionzeroinc/x402"
)

// mockFacilitator implements x402.FacilitatorClient with call counters.
type mockFacilitator struct {
	verifyFunc  func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)
	settleFunc  func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)
	verifyCalls int
	settleCalls int
}

func (m *mockFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	m.verifyCalls++
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, payload, requirements)
	}
	return &x402.VerifyResponse{IsValid: true, Payer: "0xPayer"}, nil
}

func (m *mockFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	m.settleCalls++
	if m.settleFunc != nil {
		return m.settleFunc(ctx, payload, requirements)
	}
	return &x402.SettleResponse{Success: true, Transaction: "0xabc", Network: "eip155:84532", Payer: "0xPayer"}, nil
}

func testAccepts() []x402.PaymentRequirements {
	return []x402.PaymentRequirements{{
		Scheme:  "exact",
		Network: "eip155:84532",
		Asset:   "0xUSDC",
		Amount:  "100000",
		PayTo:   "0xPayee",
	}}
}

func testPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 2,
		Accepted:    testAccepts()[0],
		Payload:     map[string]interface{}{"signature": "0xsigned"},
	}
}

// makeCallToolRequest builds a *sdk.CallToolRequest for testing.
func makeCallToolRequest(name string, args map[string]interface{}, meta sdk.Meta) *sdk.CallToolRequest {
	argsBytes, _ := json.Marshal(args)
	if argsBytes == nil {
		argsBytes = []byte("{}")
	}
	return &sdk.CallToolRequest{Params: &sdk.CallToolParamsRaw{
		Name:      name,
		Arguments: argsBytes,
		Meta:      meta,
	}}
}

func echoHandler(text string) ToolHandler {
	return func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: text}},
		}, nil
	}
}

func TestNewPaymentWrapper_EmptyAcceptsPanics(t *testing.T) {
	facilitator := &mockFacilitator{}
	assert.Panics(t, func() {
		NewPaymentWrapper(facilitator, PaymentWrapperConfig{})
	})
}

func TestWrap_NoPayment(t *testing.T) {
	facilitator := &mockFacilitator{}
	handlerCalled := false
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			handlerCalled = true
			return &sdk.CallToolResult{}, nil
		})

	result, err := wrapped(context.Background(), makeCallToolRequest("get_weather", nil, nil))
	require.NoError(t, err)

	require.True(t, result.IsError)
	assert.False(t, handlerCalled)
	assert.Zero(t, facilitator.verifyCalls)

	structured, ok := result.StructuredContent.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), structured["x402Version"])
	assert.Equal(t, "Payment required to access this tool", structured["error"])
	accepts, ok := structured["accepts"].([]interface{})
	require.True(t, ok)
	assert.Len(t, accepts, 1)

	// Body delivered identically as structuredContent and content[0] text.
	require.Len(t, result.Content, 1)
	text := result.Content[0].(*sdk.TextContent).Text
	var fromText map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &fromText))
	assert.Equal(t, structured, fromText)

	resource, ok := structured["resource"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "mcp://tool/get_weather", resource["url"])
	assert.Equal(t, "Tool: get_weather", resource["description"])
	assert.Equal(t, "application/json", resource["mimeType"])
}

func TestWrap_MalformedPaymentTreatedAsMissing(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(echoHandler("ok"))

	req := makeCallToolRequest("get_weather", nil, sdk.Meta{PaymentMetaKey: "garbage"})
	result, err := wrapped(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.IsError)
	assert.Zero(t, facilitator.verifyCalls)
}

func TestWrap_IdempotentAdvertisement(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(echoHandler("ok"))

	first, err := wrapped(context.Background(), makeCallToolRequest("get_weather", nil, nil))
	require.NoError(t, err)
	second, err := wrapped(context.Background(), makeCallToolRequest("get_weather", nil, nil))
	require.NoError(t, err)

	assert.Equal(t,
		first.Content[0].(*sdk.TextContent).Text,
		second.Content[0].(*sdk.TextContent).Text,
	)
}

func TestWrap_HappyPath(t *testing.T) {
	facilitator := &mockFacilitator{}
	handlerCalls := 0
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			handlerCalls++
			require.Equal(t, 1, facilitator.verifyCalls, "verify must run before the handler")
			require.Zero(t, facilitator.settleCalls, "settle must not run before the handler")
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: `{"city":"SF","weather":"sunny","temperature":68}`}},
			}, nil
		})

	req := makeCallToolRequest("get_weather", map[string]interface{}{"city": "SF"}, sdk.Meta{PaymentMetaKey: testPayload()})
	result, err := wrapped(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.IsError)
	assert.Equal(t, 1, handlerCalls)
	assert.Equal(t, 1, facilitator.verifyCalls)
	assert.Equal(t, 1, facilitator.settleCalls)

	require.NotNil(t, result.Meta)
	settle, ok := result.Meta[PaymentResponseMetaKey].(x402.SettleResponse)
	require.True(t, ok)
	assert.True(t, settle.Success)
	assert.Equal(t, "0xabc", settle.Transaction)
	assert.Equal(t, x402.Network("eip155:84532"), settle.Network)
}

func TestWrap_VerificationFailure(t *testing.T) {
	facilitator := &mockFacilitator{
		verifyFunc: func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
			return &x402.VerifyResponse{IsValid: false, InvalidReason: "bad signature"}, nil
		},
	}
	handlerCalled := false
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			handlerCalled = true
			return &sdk.CallToolResult{}, nil
		})

	req := makeCallToolRequest("get_weather", nil, sdk.Meta{PaymentMetaKey: testPayload()})
	result, err := wrapped(context.Background(), req)
	require.NoError(t, err)

	require.True(t, result.IsError)
	assert.False(t, handlerCalled)
	assert.Zero(t, facilitator.settleCalls)

	structured := result.StructuredContent.(map[string]interface{})
	assert.Equal(t, "bad signature", structured["error"])
}

func TestWrap_VerificationFailureFallbackMessage(t *testing.T) {
	facilitator := &mockFacilitator{
		verifyFunc: func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
			return &x402.VerifyResponse{IsValid: false}, nil
		},
	}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(echoHandler("ok"))

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	structured := result.StructuredContent.(map[string]interface{})
	assert.Equal(t, "Payment verification failed", structured["error"])
}

func TestWrap_HookOrderAndContexts(t *testing.T) {
	facilitator := &mockFacilitator{}
	var order []string

	config := PaymentWrapperConfig{
		Accepts: testAccepts(),
		Hooks: PaymentWrapperHooks{
			OnBeforeExecution: func(ctx context.Context, hookCtx ServerHookContext) (bool, error) {
				order = append(order, "before")
				assert.Equal(t, "get_weather", hookCtx.ToolName)
				assert.Equal(t, "SF", hookCtx.Arguments["city"])
				assert.Equal(t, "exact", hookCtx.Requirements.Scheme)
				return true, nil
			},
			OnAfterExecution: func(ctx context.Context, hookCtx AfterExecutionContext) error {
				order = append(order, "after")
				require.NotNil(t, hookCtx.Result)
				return nil
			},
			OnAfterSettlement: func(ctx context.Context, hookCtx SettlementContext) error {
				order = append(order, "afterSettle")
				assert.Equal(t, "0xabc", hookCtx.Settlement.Transaction)
				return nil
			},
		},
	}

	wrapped := NewPaymentWrapper(facilitator, config).Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		order = append(order, "execute")
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: "ok"}}}, nil
	})

	req := makeCallToolRequest("get_weather", map[string]interface{}{"city": "SF"}, sdk.Meta{PaymentMetaKey: testPayload()})
	result, err := wrapped(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"before", "execute", "after", "afterSettle"}, order)
}

func TestWrap_BeforeHookBlocks(t *testing.T) {
	facilitator := &mockFacilitator{}
	handlerCalled := false

	config := PaymentWrapperConfig{
		Accepts: testAccepts(),
		Hooks: PaymentWrapperHooks{
			OnBeforeExecution: func(ctx context.Context, hookCtx ServerHookContext) (bool, error) {
				return false, nil
			},
		},
	}

	wrapped := NewPaymentWrapper(facilitator, config).Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		handlerCalled = true
		return &sdk.CallToolResult{}, nil
	})

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	require.True(t, result.IsError)
	assert.False(t, handlerCalled)
	assert.Zero(t, facilitator.settleCalls)

	structured := result.StructuredContent.(map[string]interface{})
	assert.Equal(t, "Execution blocked by hook", structured["error"])
}

func TestWrap_HookErrorPropagates(t *testing.T) {
	facilitator := &mockFacilitator{}
	hookErr := errors.New("hook exploded")

	config := PaymentWrapperConfig{
		Accepts: testAccepts(),
		Hooks: PaymentWrapperHooks{
			OnBeforeExecution: func(ctx context.Context, hookCtx ServerHookContext) (bool, error) {
				return false, hookErr
			},
		},
	}

	wrapped := NewPaymentWrapper(facilitator, config).Wrap(echoHandler("ok"))
	_, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	assert.ErrorIs(t, err, hookErr)
	assert.Zero(t, facilitator.settleCalls)
}

func TestWrap_HandlerErrorResult_NoSettlement(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "not found"}},
				IsError: true,
			}, nil
		})

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	// Result propagated verbatim: no settle, no receipt.
	require.True(t, result.IsError)
	assert.Equal(t, "not found", result.Content[0].(*sdk.TextContent).Text)
	assert.Nil(t, result.Meta)
	assert.Zero(t, facilitator.settleCalls)
}

func TestWrap_HandlerGoError_NoSettlement(t *testing.T) {
	facilitator := &mockFacilitator{}
	handlerErr := errors.New("boom")
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return nil, handlerErr
		})

	_, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	assert.ErrorIs(t, err, handlerErr)
	assert.Zero(t, facilitator.settleCalls)
}

func TestWrap_SettlementError(t *testing.T) {
	facilitator := &mockFacilitator{
		settleFunc: func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
			return nil, fmt.Errorf("insufficient balance")
		},
	}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(echoHandler("ok"))

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	require.True(t, result.IsError)
	assert.Nil(t, result.Meta)

	structured := result.StructuredContent.(map[string]interface{})
	assert.Equal(t, "Payment settlement failed: insufficient balance", structured["error"])

	// The 402 body advertises the configured accepts but never embeds a
	// SettleResponse; a client must not treat it as payable progress.
	accepts := structured["accepts"].([]interface{})
	require.Len(t, accepts, 1)
	first := accepts[0].(map[string]interface{})
	assert.Equal(t, "exact", first["scheme"])
	_, hasResponse := structured[PaymentResponseMetaKey]
	assert.False(t, hasResponse)
	assert.NotContains(t, structured, "success")
	assert.NotContains(t, structured, "transaction")
}

func TestWrap_SettlementRejected(t *testing.T) {
	facilitator := &mockFacilitator{
		settleFunc: func(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
			return &x402.SettleResponse{Success: false, ErrorReason: "nonce already used"}, nil
		},
	}
	afterSettleCalled := false
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{
		Accepts: testAccepts(),
		Hooks: PaymentWrapperHooks{
			OnAfterSettlement: func(ctx context.Context, hookCtx SettlementContext) error {
				afterSettleCalled = true
				return nil
			},
		},
	}).Wrap(echoHandler("ok"))

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	require.True(t, result.IsError)
	assert.False(t, afterSettleCalled)

	structured := result.StructuredContent.(map[string]interface{})
	assert.Equal(t, "Payment settlement failed: nonce already used", structured["error"])
}

func TestWrap_CancelledContextSkipsSettle(t *testing.T) {
	facilitator := &mockFacilitator{}
	ctx, cancel := context.WithCancel(context.Background())

	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			// Connection drops while the handler runs.
			cancel()
			return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: "ok"}}}, nil
		})

	_, err := wrapped(ctx, makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, facilitator.settleCalls)
}

func TestWrap_AcceptsOrderPreserved(t *testing.T) {
	accepts := []x402.PaymentRequirements{
		{Scheme: "exact", Network: "eip155:84532", Asset: "0xUSDC", Amount: "100000", PayTo: "0xPayee"},
		{Scheme: "exact", Network: "solana:mainnet", Asset: "EPjF", Amount: "100000", PayTo: "solPayee"},
		{Scheme: "split", Network: "eip155:8453", Asset: "0xUSDC", Amount: "100000", PayTo: "0xSplit"},
	}
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: accepts}).
		Wrap(echoHandler("ok"))

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, nil))
	require.NoError(t, err)

	structured := result.StructuredContent.(map[string]interface{})
	advertised := structured["accepts"].([]interface{})
	require.Len(t, advertised, 3)
	assert.Equal(t, "eip155:84532", advertised[0].(map[string]interface{})["network"])
	assert.Equal(t, "solana:mainnet", advertised[1].(map[string]interface{})["network"])
	assert.Equal(t, "split", advertised[2].(map[string]interface{})["scheme"])
}

func TestWrap_PreservesUnrelatedMetaKeys(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()}).
		Wrap(func(ctx context.Context, request *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{
				Content: []sdk.Content{&sdk.TextContent{Text: "ok"}},
				Meta:    sdk.Meta{"trace/id": "abc123"},
			}, nil
		})

	result, err := wrapped(context.Background(), makeCallToolRequest("t", nil, sdk.Meta{PaymentMetaKey: testPayload()}))
	require.NoError(t, err)

	assert.Equal(t, "abc123", result.Meta["trace/id"])
	assert.NotNil(t, result.Meta[PaymentResponseMetaKey])
}

func TestWrap_ResourceOverrides(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapped := NewPaymentWrapper(facilitator, PaymentWrapperConfig{
		Accepts: testAccepts(),
		Resource: &ResourceInfo{
			URL:         "https://api.example.com/weather",
			Description: "Weather lookups",
			MimeType:    "text/plain",
		},
	}).Wrap(echoHandler("ok"))

	result, err := wrapped(context.Background(), makeCallToolRequest("get_weather", nil, nil))
	require.NoError(t, err)

	structured := result.StructuredContent.(map[string]interface{})
	resource := structured["resource"].(map[string]interface{})
	assert.Equal(t, "https://api.example.com/weather", resource["url"])
	assert.Equal(t, "Weather lookups", resource["description"])
	assert.Equal(t, "text/plain", resource["mimeType"])
}

func TestWrap_ToolNameFromResourceURL(t *testing.T) {
	facilitator := &mockFacilitator{}
	wrapper := NewPaymentWrapper(facilitator, PaymentWrapperConfig{
		Accepts:  testAccepts(),
		Resource: &ResourceInfo{URL: "mcp://tool/custom_tool"},
	})

	// A transport that surfaces no tool name falls back to the resource URL.
	req := &sdk.CallToolRequest{Params: &sdk.CallToolParamsRaw{}}
	assert.Equal(t, "custom_tool", wrapper.toolName(req))

	bare := NewPaymentWrapper(facilitator, PaymentWrapperConfig{Accepts: testAccepts()})
	assert.Equal(t, "paid_tool", bare.toolName(req))
}
