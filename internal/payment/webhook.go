package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pay/internal/common"
)

// webhookSignatureHeader carries the gateway's HMAC over the raw body.
const webhookSignatureHeader = "X-Razorpay-Signature"

// Webhook handles server-to-server confirmations from the gateway. The raw
// body is authenticated with the webhook signing secret before any field is
// trusted; settlement then flows through the same confirmation path as the
// browser redirect.
type Webhook struct {
	Svc    *Service
	Secret []byte
	Log    zerolog.Logger
}

// webhookEnvelope is the gateway's nested event shape. The flat triple form
// posted by older integrations is accepted as well.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`

	GatewayOrderID   string `json:"razorpay_order_id"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Signature        string `json:"razorpay_signature"`
}

// Handle verifies and applies a webhook delivery. Redeliveries of an applied
// confirmation and deliveries for already-settled orders return 200 so the
// gateway stops retrying.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || len(h.Secret) == 0 {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	if !h.verifyBody(body, r.Header.Get(webhookSignatureHeader)) {
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "malformed payload", nil)
		return
	}
	gwOrderID := strings.TrimSpace(env.Payload.Payment.Entity.OrderID)
	gwPaymentID := strings.TrimSpace(env.Payload.Payment.Entity.ID)
	pairSignature := strings.TrimSpace(env.Signature)
	if gwOrderID == "" {
		gwOrderID = strings.TrimSpace(env.GatewayOrderID)
	}
	if gwPaymentID == "" {
		gwPaymentID = strings.TrimSpace(env.GatewayPaymentID)
	}
	if gwOrderID == "" || gwPaymentID == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "payment identifiers missing", nil)
		return
	}
	if pairSignature == "" {
		// Event-shaped deliveries carry no per-payment signature; the body
		// HMAC above already authenticated the pair, so derive it.
		pairSignature = h.Svc.Verifier.Sign(gwOrderID, gwPaymentID)
	}

	order, err := h.Svc.Confirm(r.Context(), Confirmation{
		GatewayOrderID:   gwOrderID,
		GatewayPaymentID: gwPaymentID,
		Signature:        pairSignature,
		Channel:          "webhook",
	})
	switch {
	case err == nil:
		common.JSON(w, http.StatusOK, map[string]any{"received": true, "status": string(order.Status)})
	case errors.Is(err, ErrAlreadyTerminal):
		common.JSON(w, http.StatusOK, map[string]any{"received": true, "result": "already_settled"})
	case errors.Is(err, ErrDuplicatePayment):
		common.JSON(w, http.StatusOK, map[string]any{"received": true, "result": "duplicate_payment"})
	case errors.Is(err, ErrUnknownOrder):
		common.JSONError(w, http.StatusNotFound, "UNKNOWN_ORDER", "no payment order matches the delivery", nil)
	case errors.Is(err, ErrInvalidSignature):
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "payment verification failed", nil)
	case errors.Is(err, ErrOrderMismatch):
		common.JSONError(w, http.StatusConflict, "ORDER_MISMATCH", "delivery does not match the stored gateway order", nil)
	default:
		h.Log.Error().Err(err).Str("gateway_order_id", gwOrderID).Msg("webhook settlement failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
	}
}

// verifyBody checks the body HMAC in constant time.
func (h Webhook) verifyBody(body []byte, supplied string) bool {
	supplied = strings.ToLower(strings.TrimSpace(supplied))
	if supplied == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.Secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(supplied))
}
