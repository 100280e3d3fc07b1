package x402

import (
	"context"
	"fmt"
	"sync"
)

// PaymentClient manages payment mechanisms and creates payment payloads.
// It is used by applications that need to make payments (have wallets/signers).
type PaymentClient struct {
	mu sync.RWMutex

	// network pattern -> scheme -> client implementation
	schemes map[Network]map[string]SchemeNetworkClient

	requirementsSelector PaymentRequirementsSelector
}

// PaymentRequirementsSelector chooses which payment option to use when
// multiple supported options exist.
type PaymentRequirementsSelector func(requirements []PaymentRequirements) PaymentRequirements

// ClientOption configures the client
type ClientOption func(*PaymentClient)

// WithPaymentSelector sets a custom payment requirements selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *PaymentClient) {
		c.requirementsSelector = selector
	}
}

// WithScheme registers a payment mechanism at creation time
func WithScheme(network Network, client SchemeNetworkClient) ClientOption {
	return func(c *PaymentClient) {
		c.Register(network, client)
	}
}

// NewPaymentClient creates a new x402 payment client
func NewPaymentClient(opts ...ClientOption) *PaymentClient {
	c := &PaymentClient{
		schemes:              make(map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// defaultPaymentSelector chooses the first available payment option
func defaultPaymentSelector(requirements []PaymentRequirements) PaymentRequirements {
	return requirements[0]
}

// Register registers a payment mechanism for a network or network pattern
// (e.g. "eip155:84532" or "eip155:*"). Returns the client for chaining.
func (c *PaymentClient) Register(network Network, client SchemeNetworkClient) *PaymentClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[network] == nil {
		c.schemes[network] = make(map[string]SchemeNetworkClient)
	}
	c.schemes[network][client.Scheme()] = client

	return c
}

// SelectPaymentRequirements filters requirements to those the client can
// fulfill and picks one via the configured selector.
func (c *PaymentClient) SelectPaymentRequirements(requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var supported []PaymentRequirements
	for _, req := range requirements {
		schemeMap := findSchemesByNetwork(c.schemes, req.Network)
		if schemeMap != nil {
			if _, hasScheme := schemeMap[req.Scheme]; hasScheme {
				supported = append(supported, req)
			}
		}
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: "no supported payment schemes available",
			Details: map[string]interface{}{
				"requirements": requirements,
			},
		}
	}

	return c.requirementsSelector(supported), nil
}

// CanPay checks if the client can pay with any of the given requirements
func (c *PaymentClient) CanPay(requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(requirements)
	return err == nil
}

// CreatePaymentPayload creates a signed payment payload for the given
// requirements, attaching the accepted option, the resource echo and any
// server-declared extensions.
func (c *PaymentClient) CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements, resource *ResourceInfo, extensions map[string]interface{}) (PaymentPayload, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment requirements: %w", err)
	}

	client := findByNetworkAndScheme(c.schemes, requirements.Scheme, requirements.Network)
	if client == nil {
		return PaymentPayload{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for scheme %s on network %s", requirements.Scheme, requirements.Network),
		}
	}

	partial, err := client.CreatePaymentPayload(ctx, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to create payment payload: %w", err)
	}

	fullPayload := PaymentPayload{
		X402Version: partial.X402Version,
		Payload:     partial.Payload,
		Accepted:    requirements,
		Resource:    resource,
		Extensions:  extensions,
	}
	if fullPayload.X402Version == 0 {
		fullPayload.X402Version = ProtocolVersion
	}

	if err := ValidatePaymentPayload(fullPayload); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload created: %w", err)
	}

	return fullPayload, nil
}

// CreatePaymentForRequired creates a payment for a PaymentRequired response,
// carrying over its resource and extensions.
func (c *PaymentClient) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}

	return c.CreatePaymentPayload(ctx, selected, required.Resource, required.Extensions)
}
