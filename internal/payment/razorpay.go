package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pay/internal/obs"
	"github.com/noah-isme/backend-pay/internal/resilience"
)

// NewGatewayHTTPClient returns an HTTP client instrumented for outbound
// gateway calls.
func NewGatewayHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(&http.Transport{}),
	}
}

// Razorpay implements Provider against the Razorpay Orders API.
type Razorpay struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	HTTP      *resilience.HTTPClient
}

type razorpayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a gateway order for the given amount and receipt. The
// receipt lets the provider deduplicate a retried create call, which is what
// makes retrying after an ambiguous failure safe.
func (p Razorpay) CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	start := time.Now()
	result := "error"
	defer func() {
		if obs.GatewayRequestLatency != nil {
			obs.GatewayRequestLatency.WithLabelValues("create_order", result).Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	if req.AmountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("payment: amount must be positive, got %d", req.AmountMinor)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return GatewayOrder{}, fmt.Errorf("payment: unsupported currency %q", req.Currency)
	}
	if strings.TrimSpace(req.Receipt) == "" {
		return GatewayOrder{}, errors.New("payment: receipt is required")
	}
	if p.HTTP == nil {
		return GatewayOrder{}, errors.New("payment: gateway http client not configured")
	}

	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.AmountMinor,
		Currency: currency,
		Receipt:  req.Receipt,
	})
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ordersURL(), bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(p.KeyID, p.KeySecret)

	resp, err := p.HTTP.Do(ctx, httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return GatewayOrder{}, fmt.Errorf("%w: provider returned %s", ErrGatewayUnavailable, resp.Status)
	case resp.StatusCode >= http.StatusBadRequest:
		var provErr razorpayErrorResponse
		_ = json.Unmarshal(payload, &provErr)
		if provErr.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("payment: provider rejected order: %s", provErr.Error.Description)
		}
		return GatewayOrder{}, fmt.Errorf("payment: provider rejected order: %s", resp.Status)
	}

	var order razorpayOrderResponse
	if err := json.Unmarshal(payload, &order); err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: decode provider response: %w", err)
	}
	if strings.TrimSpace(order.ID) == "" {
		return GatewayOrder{}, errors.New("payment: provider response missing order id")
	}

	result = "success"
	return GatewayOrder{
		ID:          order.ID,
		AmountMinor: order.Amount,
		Currency:    order.Currency,
		Receipt:     order.Receipt,
	}, nil
}

func (p Razorpay) ordersURL() string {
	host := strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if host == "" {
		host = "https://api.razorpay.com"
	}
	return host + "/v1/orders"
}
