// Package gin provides a Gin middleware that gates HTTP endpoints behind x402
// payments, mirroring the four-phase protocol of the MCP payment wrapper:
// extract payment, verify, execute, settle.
package gin

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	x402 "github.com/sectionzeroinc/x402"
)

// Payment travels in the X-PAYMENT request header and receipts in the
// X-PAYMENT-RESPONSE response header, both as base64-encoded JSON.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// Config configures the payment middleware for one route group.
type Config struct {
	// Accepts is the list of accepted payment requirements. The first entry
	// is used for verification and settlement.
	Accepts []x402.PaymentRequirements

	// Resource describes the protected endpoint. When nil the request URL is
	// advertised.
	Resource *x402.ResourceInfo

	// Extensions is advertised in 402 responses.
	Extensions map[string]interface{}
}

// PaymentMiddleware returns a Gin middleware enforcing payment for the routes
// it wraps. The downstream handler runs only after the payment verifies; its
// response is buffered until settlement succeeds so no body leaks on a failed
// settle. An empty Accepts list panics at setup.
func PaymentMiddleware(facilitator x402.FacilitatorClient, config Config) gin.HandlerFunc {
	if len(config.Accepts) == 0 {
		panic("gin.Config.Accepts must have at least one payment requirement")
	}

	return func(c *gin.Context) {
		resource := config.Resource
		if resource == nil {
			resource = &x402.ResourceInfo{
				URL:      c.Request.URL.String(),
				MimeType: "application/json",
			}
		}

		abort402 := func(errorMsg string) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.PaymentRequired{
				X402Version: x402.ProtocolVersion,
				Error:       errorMsg,
				Resource:    resource,
				Accepts:     config.Accepts,
				Extensions:  config.Extensions,
			})
		}

		payload := decodePaymentHeader(c.GetHeader(PaymentHeader))
		if payload == nil {
			abort402("Payment required to access this resource")
			return
		}

		requirements := config.Accepts[0]

		verifyResp, err := facilitator.Verify(c.Request.Context(), *payload, requirements)
		if err != nil {
			abort402("Payment verification error: " + err.Error())
			return
		}
		if !verifyResp.IsValid {
			reason := verifyResp.InvalidReason
			if reason == "" {
				reason = "Payment verification failed"
			}
			abort402(reason)
			return
		}

		// Buffer the downstream response until settlement succeeds.
		buffer := &bufferedWriter{ResponseWriter: c.Writer, statusCode: http.StatusOK}
		c.Writer = buffer

		c.Next()

		c.Writer = buffer.ResponseWriter
		if c.IsAborted() {
			return
		}

		// Error responses are delivered unsettled: the buyer is not charged
		// for failed work.
		if buffer.statusCode >= http.StatusBadRequest {
			buffer.flush()
			return
		}

		settleResp, err := facilitator.Settle(c.Request.Context(), *payload, requirements)
		if err != nil {
			abort402("Payment settlement failed: " + err.Error())
			return
		}
		if !settleResp.Success {
			reason := settleResp.ErrorReason
			if reason == "" {
				reason = "settlement rejected by facilitator"
			}
			abort402("Payment settlement failed: " + reason)
			return
		}

		if header, err := encodeSettleHeader(settleResp); err == nil {
			c.Header(PaymentResponseHeader, header)
		}
		buffer.flush()
	}
}

// decodePaymentHeader decodes a base64 JSON payment payload. Malformed values
// are treated as absent.
func decodePaymentHeader(header string) *x402.PaymentPayload {
	if header == "" {
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}
	if payload.X402Version == 0 || payload.Payload == nil {
		return nil
	}
	return &payload
}

func encodeSettleHeader(settle *x402.SettleResponse) (string, error) {
	raw, err := json.Marshal(settle)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// bufferedWriter captures the downstream response so settlement can run
// before any byte reaches the client.
type bufferedWriter struct {
	gin.ResponseWriter
	body       strings.Builder
	statusCode int
	written    bool
}

func (w *bufferedWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
	}
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.WriteString(s)
}

func (w *bufferedWriter) flush() {
	w.ResponseWriter.WriteHeader(w.statusCode)
	_, _ = w.ResponseWriter.Write([]byte(w.body.String()))
}
