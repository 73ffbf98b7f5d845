package payment

import "time"

// Order is the logical payment view over a store order. Rows are retained
// forever as audit records; a terminal status is never rewritten.
type Order struct {
	OrderID          string
	UserID           string
	GatewayOrderID   string
	AmountMinor      int64
	Currency         string
	Status           Status
	GatewayPaymentID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
