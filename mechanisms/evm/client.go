package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	x402 "github.com/sectionzeroinc/x402"
)

// Defaults for the EIP-712 domain when requirements carry no token metadata.
const (
	defaultTokenName    = "USD Coin"
	defaultTokenVersion = "2"
)

// authorizationValidity bounds how long a signed authorization stays usable.
const authorizationValidity = time.Hour

// ExactEvmClient implements x402.SchemeNetworkClient for the exact scheme on
// eip155 networks.
type ExactEvmClient struct {
	signer ClientSigner
}

// NewExactEvmClient creates an exact-scheme client around a signer.
func NewExactEvmClient(signer ClientSigner) *ExactEvmClient {
	return &ExactEvmClient{signer: signer}
}

// Scheme returns the scheme identifier.
func (c *ExactEvmClient) Scheme() string {
	return SchemeExact
}

// CreatePaymentPayload builds and signs an EIP-3009 transferWithAuthorization
// for the given requirements and returns the partial payload. The payment
// client wraps it with accepted, resource and extensions.
func (c *ExactEvmClient) CreatePaymentPayload(
	ctx context.Context,
	requirements x402.PaymentRequirements,
) (x402.PartialPaymentPayload, error) {
	chainID, err := ChainID(requirements.Network)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	value, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok {
		return x402.PartialPaymentPayload{}, fmt.Errorf("invalid amount: %s", requirements.Amount)
	}

	nonce, err := CreateNonce()
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	validAfter, validBefore := CreateValidityWindow(authorizationValidity)

	// Token domain metadata rides in requirements.Extra when the server
	// advertises it.
	tokenName := defaultTokenName
	tokenVersion := defaultTokenVersion
	if requirements.Extra != nil {
		if name, ok := requirements.Extra["name"].(string); ok {
			tokenName = name
		}
		if version, ok := requirements.Extra["version"].(string); ok {
			tokenVersion = version
		}
	}

	authorization := ExactEIP3009Authorization{
		From:        c.signer.Address(),
		To:          requirements.PayTo,
		Value:       value.String(),
		ValidAfter:  validAfter.String(),
		ValidBefore: validBefore.String(),
		Nonce:       nonce,
	}

	signature, err := c.signAuthorization(ctx, authorization, chainID, requirements.Asset, tokenName, tokenVersion)
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("failed to sign authorization: %w", err)
	}

	evmPayload := &ExactEIP3009Payload{
		Signature:     BytesToHex(signature),
		Authorization: authorization,
	}

	return x402.PartialPaymentPayload{
		X402Version: x402.ProtocolVersion,
		Payload:     evmPayload.ToMap(),
	}, nil
}

// signAuthorization signs the EIP-3009 authorization as EIP-712 typed data.
func (c *ExactEvmClient) signAuthorization(
	ctx context.Context,
	authorization ExactEIP3009Authorization,
	chainID *big.Int,
	verifyingContract string,
	tokenName string,
	tokenVersion string,
) ([]byte, error) {
	domain := TypedDataDomain{
		Name:              tokenName,
		Version:           tokenVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}

	types := map[string][]TypedDataField{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TransferWithAuthorization": {
			{Name: "from", Type: "address"},
			{Name: "to", Type: "address"},
			{Name: "value", Type: "uint256"},
			{Name: "validAfter", Type: "uint256"},
			{Name: "validBefore", Type: "uint256"},
			{Name: "nonce", Type: "bytes32"},
		},
	}

	value, _ := new(big.Int).SetString(authorization.Value, 10)
	validAfter, _ := new(big.Int).SetString(authorization.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(authorization.ValidBefore, 10)
	nonceBytes, err := HexToBytes(authorization.Nonce)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce: %w", err)
	}

	message := map[string]interface{}{
		"from":        authorization.From,
		"to":          authorization.To,
		"value":       value,
		"validAfter":  validAfter,
		"validBefore": validBefore,
		"nonce":       nonceBytes,
	}

	return c.signer.SignTypedData(ctx, domain, types, "TransferWithAuthorization", message)
}
