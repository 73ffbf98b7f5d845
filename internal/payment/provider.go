package payment

import "context"

// CreateOrderRequest captures the information required to open a gateway
// order with the provider.
type CreateOrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
}

// GatewayOrder is the minimal provider response for a created gateway order.
type GatewayOrder struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
}

// Provider abstracts the order-creation operation of the upstream payment
// gateway. Implementations must return ErrGatewayUnavailable (wrapped) for
// transient network or provider failures so callers can retry with the same
// receipt.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
}
