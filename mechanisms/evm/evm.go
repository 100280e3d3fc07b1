// Package evm implements the client side of the "exact" payment scheme for
// eip155 networks: EIP-3009 transferWithAuthorization payloads signed as
// EIP-712 typed data.
package evm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	x402 "github.com/sectionzeroinc/x402"
)

// SchemeExact is the exact payment scheme identifier.
const SchemeExact = "exact"

// TypedDataDomain is the EIP-712 domain separator.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract string
}

// TypedDataField is one field of an EIP-712 struct type.
type TypedDataField struct {
	Name string
	Type string
}

// ClientSigner signs EIP-712 typed data on behalf of a payer wallet.
// Implementations must be safe for concurrent use.
type ClientSigner interface {
	// Address returns the payer address in hex form.
	Address() string

	// SignTypedData returns the 65-byte (r, s, v) signature over the typed
	// data digest.
	SignTypedData(
		ctx context.Context,
		domain TypedDataDomain,
		types map[string][]TypedDataField,
		primaryType string,
		message map[string]interface{},
	) ([]byte, error)
}

// ChainID extracts the numeric chain ID from a CAIP-2 eip155 network
// identifier (e.g. "eip155:84532" -> 84532).
func ChainID(network x402.Network) (*big.Int, error) {
	namespace, reference, err := network.Parse()
	if err != nil {
		return nil, err
	}
	if namespace != "eip155" {
		return nil, fmt.Errorf("not an eip155 network: %s", network)
	}
	chainID, ok := new(big.Int).SetString(reference, 10)
	if !ok {
		return nil, fmt.Errorf("invalid chain ID in network %s", network)
	}
	return chainID, nil
}

// CreateNonce generates a random 32-byte nonce as a 0x-prefixed hex string.
func CreateNonce() (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return "0x" + hex.EncodeToString(nonce), nil
}

// CreateValidityWindow returns validAfter/validBefore unix timestamps for an
// authorization usable immediately: validAfter is 0 and validBefore is now
// plus the given duration.
func CreateValidityWindow(validity time.Duration) (validAfter, validBefore *big.Int) {
	now := time.Now().Unix()
	return big.NewInt(0), big.NewInt(now + int64(validity.Seconds()))
}

// HexToBytes decodes a 0x-prefixed hex string.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// BytesToHex encodes bytes as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
