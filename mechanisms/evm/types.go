package evm

// ExactEIP3009Authorization is the transferWithAuthorization message of
// EIP-3009. Numeric fields are decimal strings; nonce is 0x-prefixed hex.
type ExactEIP3009Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEIP3009Payload is the scheme-specific payload carried inside a
// PaymentPayload for the exact scheme on EVM networks.
type ExactEIP3009Payload struct {
	Signature     string                    `json:"signature"`
	Authorization ExactEIP3009Authorization `json:"authorization"`
}

// ToMap converts the payload to the loose map shape used on the wire.
func (p *ExactEIP3009Payload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"signature": p.Signature,
		"authorization": map[string]interface{}{
			"from":        p.Authorization.From,
			"to":          p.Authorization.To,
			"value":       p.Authorization.Value,
			"validAfter":  p.Authorization.ValidAfter,
			"validBefore": p.Authorization.ValidBefore,
			"nonce":       p.Authorization.Nonce,
		},
	}
}
