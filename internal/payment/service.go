package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-pay/internal/common"
	"github.com/noah-isme/backend-pay/internal/events"
	"github.com/noah-isme/backend-pay/internal/money"
	"github.com/noah-isme/backend-pay/internal/obs"
)

// Auditor records payment transitions on the audit trail.
type Auditor interface {
	Emit(ctx context.Context, topic, orderID string, payload any) (events.Event, error)
}

// ExpiryScheduler arranges a deferred expiry sweep for an order.
type ExpiryScheduler interface {
	Schedule(ctx context.Context, orderID string, delay time.Duration) error
}

// Service coordinates order creation against the gateway and confirmation,
// cancellation and expiry of payment orders.
type Service struct {
	Store    Store
	Provider Provider
	Verifier SignatureVerifier
	Receipts ReceiptGenerator
	Bus      Auditor
	Expiry   ExpiryScheduler
	Log      zerolog.Logger

	Currency       string
	MaxAmountMinor int64
	IntentTTL      time.Duration
	GatewayTimeout time.Duration
}

// CreateOrderInput is the request to open (or resume) a payment order.
type CreateOrderInput struct {
	OrderID  string
	UserID   string
	Amount   string
	Currency string
}

// Confirmation carries the gateway's proof of payment. OrderID is optional;
// when present the stored gateway order id must match GatewayOrderID.
type Confirmation struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Channel          string
}

// CreateOrder normalises the amount, ensures a pending row exists and opens a
// gateway order for it. Retries with the same order id are safe: an order
// that already carries a gateway order is returned as-is, and an order whose
// earlier gateway call failed gets a fresh attempt with the same receipt.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	var zero Order
	if s == nil || s.Store == nil || s.Provider == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateOrder")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.order.result", result))
		if obs.PaymentOrderTotal != nil {
			obs.PaymentOrderTotal.WithLabelValues(result).Inc()
		}
	}()

	orderID := strings.TrimSpace(in.OrderID)
	if orderID == "" {
		result = "invalid"
		return zero, fmt.Errorf("%w: order id is required", money.ErrInvalidAmount)
	}
	span.SetAttributes(attribute.String("order.id", orderID))

	minor, err := money.ToMinorUnits(in.Amount, s.MaxAmountMinor)
	if err != nil {
		result = "invalid"
		return zero, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.Currency
	}

	order, created, err := s.Store.CreatePending(ctx, orderID, in.UserID, minor, currency)
	if err != nil {
		return zero, err
	}
	if !created {
		if order.UserID != in.UserID {
			result = "forbidden"
			return zero, ErrForbidden
		}
		if order.Status.Terminal() {
			result = "terminal"
			return zero, fmt.Errorf("order %s is %s: %w", orderID, order.Status, ErrAlreadyTerminal)
		}
		if order.AmountMinor != minor || order.Currency != currency {
			result = "invalid"
			return zero, fmt.Errorf("%w: amount differs from the original order", money.ErrInvalidAmount)
		}
		if order.GatewayOrderID != "" {
			result = "reused"
			return order, nil
		}
		// Pending without a gateway order: a previous gateway call failed.
		// Fall through and retry with the same receipt.
	}

	receipt := s.Receipts.Receipt(orderID)
	gwCtx := ctx
	if s.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		gwCtx, cancel = context.WithTimeout(ctx, s.GatewayTimeout)
		defer cancel()
	}
	gw, err := s.Provider.CreateOrder(gwCtx, CreateOrderRequest{
		AmountMinor: minor,
		Currency:    currency,
		Receipt:     receipt,
	})
	if err != nil {
		span.RecordError(err)
		result = "gateway_error"
		return zero, err
	}

	attached, err := s.Store.AttachGatewayOrder(ctx, orderID, gw.ID)
	if errors.Is(err, ErrStaleTransition) {
		// A concurrent retry attached first, or the order moved on. The
		// stored row is authoritative; the losing gateway order simply
		// expires unpaid on the provider side.
		current, getErr := s.Store.Get(ctx, orderID)
		if getErr != nil {
			return zero, getErr
		}
		if current.GatewayOrderID != "" && !current.Status.Terminal() {
			result = "reused"
			return current, nil
		}
		if current.Status.Terminal() {
			result = "terminal"
			return zero, fmt.Errorf("order %s is %s: %w", orderID, current.Status, ErrAlreadyTerminal)
		}
		return zero, err
	}
	if err != nil {
		return zero, err
	}

	if s.Expiry != nil && s.IntentTTL > 0 {
		if schedErr := s.Expiry.Schedule(ctx, orderID, s.IntentTTL); schedErr != nil {
			s.Log.Warn().Err(schedErr).Str("order_id", orderID).Msg("schedule payment expiry")
		}
	}
	s.emit(ctx, events.TopicOrderCreated, orderID, map[string]any{
		"gateway_order_id": gw.ID,
		"amount_minor":     minor,
		"currency":         currency,
		"receipt":          receipt,
	})

	result = "created"
	return attached, nil
}

// Confirm verifies a confirmation and settles the order. The signature is the
// sole proof of payment; a confirmation that fails verification marks the
// order failed. Redelivery of an already-applied confirmation is a no-op that
// returns the stored outcome.
func (s *Service) Confirm(ctx context.Context, in Confirmation) (Order, error) {
	var zero Order
	if s == nil || s.Store == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Confirm")
	defer span.End()

	channel := strings.TrimSpace(in.Channel)
	if channel == "" {
		channel = "redirect"
	}
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("payment.confirm.channel", channel),
			attribute.String("payment.confirm.result", result),
		)
		if obs.PaymentConfirmTotal != nil {
			obs.PaymentConfirmTotal.WithLabelValues(channel, result).Inc()
		}
	}()

	order, err := s.resolveOrder(ctx, in)
	if err != nil {
		if errors.Is(err, ErrUnknownOrder) {
			result = "unknown_order"
		}
		return zero, err
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	if in.GatewayOrderID != order.GatewayOrderID || order.GatewayOrderID == "" {
		result = "mismatch"
		s.Log.Warn().
			Str("order_id", order.OrderID).
			Str("expected_gateway_order_id", order.GatewayOrderID).
			Str("supplied_gateway_order_id", in.GatewayOrderID).
			Msg("confirmation gateway order id mismatch")
		s.emit(ctx, events.TopicOrderMismatch, order.OrderID, map[string]any{
			"expected": order.GatewayOrderID,
			"supplied": in.GatewayOrderID,
			"channel":  channel,
		})
		return zero, ErrOrderMismatch
	}

	// Settled orders report their recorded outcome without re-verifying:
	// gateway redeliveries must stay idempotent even when the signature on
	// the retry is mangled.
	if order.Status.Terminal() {
		return s.terminalOutcome(ctx, order, in, channel, &result)
	}

	if !s.Verifier.Verify(in.GatewayOrderID, in.GatewayPaymentID, in.Signature) {
		result = "invalid_signature"
		failed, failErr := s.Store.Transition(ctx, order.OrderID, order.Status, StatusFailed, "")
		if failErr != nil && !errors.Is(failErr, ErrStaleTransition) {
			s.Log.Error().Err(failErr).Str("order_id", order.OrderID).Msg("mark order failed after bad signature")
		}
		if failErr == nil {
			s.emit(ctx, events.TopicPaymentFailed, failed.OrderID, map[string]any{
				"reason":             "invalid_signature",
				"gateway_payment_id": in.GatewayPaymentID,
				"channel":            channel,
			})
		}
		return zero, ErrInvalidSignature
	}

	updated, err := s.Store.Transition(ctx, order.OrderID, order.Status, StatusCompleted, in.GatewayPaymentID)
	if errors.Is(err, ErrDuplicatePayment) {
		return s.rejectDuplicate(ctx, order, in, channel, &result)
	}
	if errors.Is(err, ErrStaleTransition) {
		// Lost the race against a concurrent confirmation or cancellation.
		current, getErr := s.Store.Get(ctx, order.OrderID)
		if getErr != nil {
			return zero, getErr
		}
		return s.terminalOutcome(ctx, current, in, channel, &result)
	}
	if err != nil {
		return zero, err
	}

	s.emit(ctx, events.TopicPaymentCompleted, updated.OrderID, map[string]any{
		"gateway_order_id":   updated.GatewayOrderID,
		"gateway_payment_id": updated.GatewayPaymentID,
		"amount_minor":       updated.AmountMinor,
		"currency":           updated.Currency,
		"channel":            channel,
	})
	result = "completed"
	return updated, nil
}

// resolveOrder loads the order a confirmation refers to, preferring the
// internal order id when the caller supplied one.
func (s *Service) resolveOrder(ctx context.Context, in Confirmation) (Order, error) {
	if id := strings.TrimSpace(in.OrderID); id != "" {
		return s.Store.Get(ctx, id)
	}
	gwID := strings.TrimSpace(in.GatewayOrderID)
	if gwID == "" {
		return Order{}, ErrUnknownOrder
	}
	return s.Store.GetByGatewayOrderID(ctx, gwID)
}

// terminalOutcome reports the recorded outcome for a confirmation that
// arrived after the order settled.
func (s *Service) terminalOutcome(ctx context.Context, order Order, in Confirmation, channel string, result *string) (Order, error) {
	switch order.Status {
	case StatusCompleted:
		if order.GatewayPaymentID == strings.TrimSpace(in.GatewayPaymentID) {
			*result = "replayed"
			return order, nil
		}
		return s.rejectDuplicate(ctx, order, in, channel, result)
	default:
		*result = "terminal"
		return Order{}, fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, ErrAlreadyTerminal)
	}
}

// rejectDuplicate records a confirmation whose payment id is already bound
// elsewhere, or which tries to settle an order a second time with a
// different payment.
func (s *Service) rejectDuplicate(ctx context.Context, order Order, in Confirmation, channel string, result *string) (Order, error) {
	*result = "duplicate"
	if obs.PaymentDuplicateTotal != nil {
		obs.PaymentDuplicateTotal.Inc()
	}
	s.Log.Warn().
		Str("order_id", order.OrderID).
		Str("gateway_payment_id", in.GatewayPaymentID).
		Msg("duplicate payment id on confirmation")
	s.emit(ctx, events.TopicDuplicatePayment, order.OrderID, map[string]any{
		"gateway_order_id":   in.GatewayOrderID,
		"gateway_payment_id": in.GatewayPaymentID,
		"channel":            channel,
	})
	if !order.Status.Terminal() {
		if _, err := s.Store.Transition(ctx, order.OrderID, order.Status, StatusFailed, ""); err != nil && !errors.Is(err, ErrStaleTransition) {
			s.Log.Error().Err(err).Str("order_id", order.OrderID).Msg("mark order failed after duplicate payment")
		} else if err == nil {
			s.emit(ctx, events.TopicPaymentFailed, order.OrderID, map[string]any{
				"reason":             "duplicate_payment",
				"gateway_payment_id": in.GatewayPaymentID,
				"channel":            channel,
			})
		}
	}
	return Order{}, ErrDuplicatePayment
}

// Cancel voids an unsettled order on behalf of its owner or an admin.
// Cancelling an already-cancelled order is a no-op.
func (s *Service) Cancel(ctx context.Context, orderID, userID, role string) (Order, error) {
	var zero Order
	if s == nil || s.Store == nil {
		return zero, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Cancel")
	defer span.End()

	origin := "user"
	if role == common.RoleAdmin {
		origin = "admin"
	}
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.cancel.result", result),
		)
		if obs.PaymentCancelTotal != nil {
			obs.PaymentCancelTotal.WithLabelValues(origin, result).Inc()
		}
	}()

	order, err := s.Store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrUnknownOrder) {
			result = "unknown_order"
		}
		return zero, err
	}
	if order.UserID != userID && origin != "admin" {
		result = "forbidden"
		return zero, ErrForbidden
	}

	cancelled, err := s.cancelFrom(ctx, order)
	if err != nil {
		if errors.Is(err, ErrAlreadyTerminal) {
			result = "terminal"
		}
		return zero, err
	}
	s.emit(ctx, events.TopicOrderCancelled, cancelled.OrderID, map[string]any{
		"origin": origin,
		"from":   string(order.Status),
	})
	result = "cancelled"
	return cancelled, nil
}

// Expire cancels an order whose payment window elapsed without a
// confirmation. Orders that settled in the meantime are left untouched.
func (s *Service) Expire(ctx context.Context, orderID string) error {
	if s == nil || s.Store == nil {
		return errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Expire")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("order.id", orderID),
			attribute.String("payment.expire.result", result),
		)
		if obs.PaymentExpireTotal != nil {
			obs.PaymentExpireTotal.WithLabelValues(result).Inc()
		}
	}()

	order, err := s.Store.Get(ctx, orderID)
	if errors.Is(err, ErrUnknownOrder) {
		result = "unknown_order"
		return nil
	}
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		result = "settled"
		return nil
	}

	cancelled, err := s.cancelFrom(ctx, order)
	if errors.Is(err, ErrAlreadyTerminal) {
		result = "settled"
		return nil
	}
	if err != nil {
		return err
	}
	s.emit(ctx, events.TopicOrderCancelled, cancelled.OrderID, map[string]any{
		"origin": "expiry",
		"from":   string(order.Status),
	})
	result = "expired"
	return nil
}

// cancelFrom moves order to cancelled, tolerating one concurrent transition.
func (s *Service) cancelFrom(ctx context.Context, order Order) (Order, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if order.Status == StatusCancelled {
			return order, nil
		}
		if order.Status.Terminal() {
			return Order{}, fmt.Errorf("order %s is %s: %w", order.OrderID, order.Status, ErrAlreadyTerminal)
		}
		cancelled, err := s.Store.Transition(ctx, order.OrderID, order.Status, StatusCancelled, "")
		if err == nil {
			return cancelled, nil
		}
		if !errors.Is(err, ErrStaleTransition) {
			return Order{}, err
		}
		order, err = s.Store.Get(ctx, order.OrderID)
		if err != nil {
			return Order{}, err
		}
	}
	return Order{}, ErrStaleTransition
}

// GetOrder returns an order for its owner or an admin.
func (s *Service) GetOrder(ctx context.Context, orderID, userID, role string) (Order, error) {
	order, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != userID && role != common.RoleAdmin {
		return Order{}, ErrForbidden
	}
	return order, nil
}

func (s *Service) emit(ctx context.Context, topic, orderID string, payload any) {
	if s.Bus == nil {
		return
	}
	if _, err := s.Bus.Emit(ctx, topic, orderID, payload); err != nil {
		s.Log.Error().Err(err).Str("topic", topic).Str("order_id", orderID).Msg("emit payment event")
	}
}
