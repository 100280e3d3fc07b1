// Package split provides support types for the "split" payment scheme, in
// which a single payment is divided among multiple recipients by basis-point
// allocation. Recipients travel in PaymentRequirements.Extra under the
// "recipients" key; the facilitator performs the on-chain distribution.
package split

import (
	"encoding/json"
	"fmt"
	"math/big"

	x402 "github.com/sectionzeroinc/x402"
)

// Scheme is the split payment scheme identifier.
const Scheme = "split"

// TotalBps is the full allocation: recipient bps must sum to exactly this.
const TotalBps = 10000

// Recipient is one party in a split payment.
type Recipient struct {
	// Address is the recipient wallet address.
	Address string `json:"address"`

	// Bps is the basis-point allocation, in [1, 10000].
	Bps int `json:"bps"`

	// Label is an optional human-readable tag.
	Label string `json:"label,omitempty"`
}

// Config holds the recipient set for a split payment.
type Config struct {
	Recipients []Recipient `json:"recipients"`
}

// Validate checks the split invariants: at least one recipient, each bps in
// [1, 10000], and the total summing to exactly 10000.
func (c Config) Validate() error {
	if len(c.Recipients) == 0 {
		return fmt.Errorf("split must have at least 1 recipient")
	}

	total := 0
	for _, r := range c.Recipients {
		if r.Bps < 1 || r.Bps > TotalBps {
			return fmt.Errorf("each recipient bps must be 1-%d, got %d for %s", TotalBps, r.Bps, r.Address)
		}
		total += r.Bps
	}

	if total != TotalBps {
		return fmt.Errorf("recipient bps must sum to %d, got %d", TotalBps, total)
	}

	return nil
}

// Share is one recipient's portion of a total amount.
type Share struct {
	Address string
	Amount  *big.Int
}

// Shares divides a total amount (smallest unit) among the recipients using
// floor division. The last recipient receives the remainder so no dust is
// left undistributed.
func (c Config) Shares(total *big.Int) []Share {
	shares := make([]Share, 0, len(c.Recipients))
	distributed := new(big.Int)

	for i, recipient := range c.Recipients {
		var amount *big.Int
		if i == len(c.Recipients)-1 {
			amount = new(big.Int).Sub(total, distributed)
		} else {
			amount = new(big.Int).Mul(total, big.NewInt(int64(recipient.Bps)))
			amount.Div(amount, big.NewInt(TotalBps))
		}
		shares = append(shares, Share{Address: recipient.Address, Amount: amount})
		distributed.Add(distributed, amount)
	}

	return shares
}

// Requirements builds validated split-scheme payment requirements. The payTo
// address receives nothing directly; it identifies the split contract or
// facilitator disbursement account, while the recipient set rides in Extra.
func Requirements(network x402.Network, asset, amount, payTo string, config Config) (x402.PaymentRequirements, error) {
	if err := config.Validate(); err != nil {
		return x402.PaymentRequirements{}, err
	}

	recipients := make([]interface{}, 0, len(config.Recipients))
	for _, r := range config.Recipients {
		entry := map[string]interface{}{
			"address": r.Address,
			"bps":     r.Bps,
		}
		if r.Label != "" {
			entry["label"] = r.Label
		}
		recipients = append(recipients, entry)
	}

	return x402.PaymentRequirements{
		Scheme:  Scheme,
		Network: network,
		Asset:   asset,
		Amount:  amount,
		PayTo:   payTo,
		Extra: map[string]interface{}{
			"recipients": recipients,
		},
	}, nil
}

// ConfigFromRequirements recovers and validates the recipient set embedded in
// split-scheme requirements, tolerating the loose shapes produced by JSON
// decoding.
func ConfigFromRequirements(requirements x402.PaymentRequirements) (Config, error) {
	if requirements.Scheme != Scheme {
		return Config{}, fmt.Errorf("not a split scheme requirement: %s", requirements.Scheme)
	}
	if requirements.Extra == nil {
		return Config{}, fmt.Errorf("split requirements carry no recipients")
	}

	raw, ok := requirements.Extra["recipients"]
	if !ok {
		return Config{}, fmt.Errorf("split requirements carry no recipients")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return Config{}, fmt.Errorf("failed to marshal recipients: %w", err)
	}

	var recipients []Recipient
	if err := json.Unmarshal(data, &recipients); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}

	config := Config{Recipients: recipients}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}
