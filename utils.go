package x402

import "fmt"

// ValidatePaymentPayload performs basic validation on a payment payload
func ValidatePaymentPayload(p PaymentPayload) error {
	if p.X402Version < 1 || p.X402Version > ProtocolVersion {
		return fmt.Errorf("unsupported x402 version: %d", p.X402Version)
	}
	if p.Accepted.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if p.Accepted.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if p.Payload == nil {
		return fmt.Errorf("payment payload is required")
	}
	return nil
}

// ValidatePaymentRequirements performs basic validation on payment requirements
func ValidatePaymentRequirements(r PaymentRequirements) error {
	if r.Scheme == "" {
		return fmt.Errorf("payment scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("payment network is required")
	}
	if r.Asset == "" {
		return fmt.Errorf("payment asset is required")
	}
	if r.Amount == "" {
		return fmt.Errorf("payment amount is required")
	}
	if r.PayTo == "" {
		return fmt.Errorf("payment recipient is required")
	}
	return nil
}

// findByNetworkAndScheme finds a scheme implementation for a network/scheme
// combination. Exact network matches win; among wildcard patterns
// (e.g. "eip155:*") the longest pattern wins.
func findByNetworkAndScheme[T any](networkMap map[Network]map[string]T, scheme string, network Network) T {
	var zero T

	if schemeMap, exists := networkMap[network]; exists {
		if impl, exists := schemeMap[scheme]; exists {
			return impl
		}
	}

	var best T
	bestLen := -1
	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			if impl, exists := schemeMap[scheme]; exists {
				if len(registeredNetwork) > bestLen {
					best = impl
					bestLen = len(registeredNetwork)
				}
			}
		}
	}
	if bestLen >= 0 {
		return best
	}

	return zero
}

// findSchemesByNetwork finds all schemes registered for a network, preferring
// an exact entry over the longest matching wildcard pattern.
func findSchemesByNetwork[T any](networkMap map[Network]map[string]T, network Network) map[string]T {
	if schemeMap, exists := networkMap[network]; exists {
		return schemeMap
	}

	var best map[string]T
	bestLen := -1
	for registeredNetwork, schemeMap := range networkMap {
		if network.Match(registeredNetwork) || registeredNetwork.Match(network) {
			if len(registeredNetwork) > bestLen {
				best = schemeMap
				bestLen = len(registeredNetwork)
			}
		}
	}

	return best
}
