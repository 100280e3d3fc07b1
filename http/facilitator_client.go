// Package http provides HTTP implementations of x402 network boundaries:
// a facilitator client speaking the REST verify/settle contract.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/sectionzeroinc/x402"
)

// DefaultFacilitatorURL is the default public facilitator.
const DefaultFacilitatorURL = "https://x402.org/facilitator"

// AuthProvider generates authentication headers for facilitator requests.
type AuthProvider interface {
	GetAuthHeaders(ctx context.Context) (AuthHeaders, error)
}

// AuthHeaders contains authentication headers per facilitator endpoint.
type AuthHeaders struct {
	Verify map[string]string
	Settle map[string]string
}

// FacilitatorConfig configures the HTTP facilitator client.
type FacilitatorConfig struct {
	// URL is the base URL of the facilitator service.
	URL string

	// HTTPClient is the HTTP client to use (optional). The default client
	// pools connections and is safe for concurrent use.
	HTTPClient *http.Client

	// AuthProvider provides authentication headers (optional).
	AuthProvider AuthProvider

	// Timeout for requests (optional, defaults to 30s). Ignored when
	// HTTPClient is provided.
	Timeout time.Duration
}

// FacilitatorClient communicates with a remote facilitator service over HTTP.
// It implements x402.FacilitatorClient and is safe for concurrent use.
type FacilitatorClient struct {
	url          string
	httpClient   *http.Client
	authProvider AuthProvider
}

// NewFacilitatorClient creates a new HTTP facilitator client.
func NewFacilitatorClient(config *FacilitatorConfig) *FacilitatorClient {
	if config == nil {
		config = &FacilitatorConfig{}
	}

	url := config.URL
	if url == "" {
		url = DefaultFacilitatorURL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &FacilitatorClient{
		url:          url,
		httpClient:   httpClient,
		authProvider: config.AuthProvider,
	}
}

// facilitatorRequest is the REST body shared by /verify and /settle.
type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// Verify checks a payment against requirements via POST /verify.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	body, status, err := c.post(ctx, "/verify", payload, requirements, func(h AuthHeaders) map[string]string { return h.Verify })
	if err != nil {
		return nil, err
	}

	var verifyResponse x402.VerifyResponse
	if err := json.Unmarshal(body, &verifyResponse); err != nil {
		return nil, fmt.Errorf("failed to decode verify response (%d): %s", status, string(body))
	}

	if status != http.StatusOK {
		if verifyResponse.InvalidReason != "" {
			return nil, x402.NewPaymentError(x402.ErrCodeInvalidPayment, verifyResponse.InvalidReason, nil)
		}
		return nil, fmt.Errorf("facilitator verify failed (%d): %s", status, string(body))
	}

	return &verifyResponse, nil
}

// Settle executes a payment via POST /settle.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	body, status, err := c.post(ctx, "/settle", payload, requirements, func(h AuthHeaders) map[string]string { return h.Settle })
	if err != nil {
		return nil, err
	}

	var settleResponse x402.SettleResponse
	if err := json.Unmarshal(body, &settleResponse); err != nil {
		return nil, fmt.Errorf("failed to decode settle response (%d): %s", status, string(body))
	}

	if status != http.StatusOK {
		if settleResponse.ErrorReason != "" {
			return nil, x402.NewPaymentError(x402.ErrCodeSettlementFailed, settleResponse.ErrorReason, map[string]interface{}{
				"transaction": settleResponse.Transaction,
				"network":     settleResponse.Network,
			})
		}
		return nil, fmt.Errorf("facilitator settle failed (%d): %s", status, string(body))
	}

	return &settleResponse, nil
}

func (c *FacilitatorClient) post(
	ctx context.Context,
	path string,
	payload x402.PaymentPayload,
	requirements x402.PaymentRequirements,
	headers func(AuthHeaders) map[string]string,
) ([]byte, int, error) {
	body, err := json.Marshal(facilitatorRequest{
		X402Version:         payload.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.authProvider != nil {
		authHeaders, err := c.authProvider.GetAuthHeaders(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to get auth headers: %w", err)
		}
		for k, v := range headers(authHeaders) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return responseBody, resp.StatusCode, nil
}
