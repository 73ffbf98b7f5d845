package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier authenticates confirmations. The gateway signs
// "<gatewayOrderID>|<gatewayPaymentID>" with HMAC-SHA256 using the shared
// secret; this is the sole proof of payment accepted.
type SignatureVerifier struct {
	Secret []byte
}

// Verify recomputes the signature and compares it in constant time. It
// returns false for any mismatch, malformed input, or missing secret; an
// attacker-controlled value reaching this function is an expected case, so it
// never returns an error.
func (v SignatureVerifier) Verify(gatewayOrderID, gatewayPaymentID, supplied string) bool {
	if len(v.Secret) == 0 {
		return false
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	provided := strings.ToLower(strings.TrimSpace(supplied))
	if gatewayOrderID == "" || gatewayPaymentID == "" || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// Sign computes the signature for the pair. Used by the webhook adapter for
// body-authenticated deliveries and by tests.
func (v SignatureVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(gatewayOrderID))
	mac.Write([]byte("|"))
	mac.Write([]byte(gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
