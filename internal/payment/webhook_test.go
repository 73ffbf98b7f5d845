package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "webhook-secret"

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookFixture(t *testing.T) (*Service, Webhook, Order) {
	t.Helper()
	svc := newTestService(newMemStore(), &fakeProvider{})
	created, err := svc.CreateOrder(context.Background(), CreateOrderInput{OrderID: "ord-1", UserID: "user-1", Amount: "499.00"})
	require.NoError(t, err)
	wh := Webhook{Svc: svc, Secret: []byte(webhookSecret), Log: zerolog.Nop()}
	return svc, wh, created
}

func postWebhook(t *testing.T, wh Webhook, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Razorpay-Signature", signature)
	}
	rr := httptest.NewRecorder()
	wh.Handle(rr, req)
	return rr
}

func eventBody(gatewayOrderID, gatewayPaymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": %q, "order_id": %q}}}
	}`, gatewayPaymentID, gatewayOrderID))
}

func TestWebhookSettlesOrder(t *testing.T) {
	svc, wh, created := newWebhookFixture(t)

	body := eventBody(created.GatewayOrderID, "pay_1")
	rr := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := svc.Store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, "pay_1", stored.GatewayPaymentID)
}

func TestWebhookRedeliveryReturnsOK(t *testing.T) {
	_, wh, created := newWebhookFixture(t)

	body := eventBody(created.GatewayOrderID, "pay_1")
	first := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusOK, first.Code)
	second := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusOK, second.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	require.Equal(t, true, resp["received"])
}

func TestWebhookRejectsBadBodySignature(t *testing.T) {
	svc, wh, created := newWebhookFixture(t)

	body := eventBody(created.GatewayOrderID, "pay_1")
	rr := postWebhook(t, wh, body, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postWebhook(t, wh, body, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	stored, err := svc.Store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, stored.Status)
}

func TestWebhookAcceptsFlatTriple(t *testing.T) {
	svc, wh, created := newWebhookFixture(t)

	payload := map[string]string{
		"razorpay_order_id":   created.GatewayOrderID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  svc.Verifier.Sign(created.GatewayOrderID, "pay_1"),
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rr := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := svc.Store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
}

func TestWebhookUnknownOrder(t *testing.T) {
	_, wh, _ := newWebhookFixture(t)

	body := eventBody("gw_missing", "pay_1")
	rr := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhookAfterCancelReportsSettled(t *testing.T) {
	svc, wh, created := newWebhookFixture(t)

	_, err := svc.Cancel(context.Background(), "ord-1", "user-1", "")
	require.NoError(t, err)

	body := eventBody(created.GatewayOrderID, "pay_1")
	rr := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "already_settled", resp["result"])

	stored, err := svc.Store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
}

func TestWebhookMissingIdentifiers(t *testing.T) {
	_, wh, _ := newWebhookFixture(t)

	body := []byte(`{"event":"payment.captured","payload":{}}`)
	rr := postWebhook(t, wh, body, signBody(body))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
