package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists payment orders. Every status mutation is a single-row
// conditional update keyed on the expected pre-state, so concurrent writers
// race safely: exactly one transition commits and the rest observe
// ErrStaleTransition.
type Store interface {
	CreatePending(ctx context.Context, orderID, userID string, amountMinor int64, currency string) (Order, bool, error)
	Get(ctx context.Context, orderID string) (Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error)
	AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) (Order, error)
	Transition(ctx context.Context, orderID string, from, to Status, gatewayPaymentID string) (Order, error)
}

const uniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

const orderColumns = `order_id, user_id, COALESCE(gateway_order_id, ''), amount_minor, currency, status, COALESCE(gateway_payment_id, ''), created_at, updated_at`

// CreatePending inserts a pending order, or returns the existing row when the
// order id is already present. The second return value reports whether a new
// row was created.
func (s *PostgresStore) CreatePending(ctx context.Context, orderID, userID string, amountMinor int64, currency string) (Order, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payment_orders (order_id, user_id, amount_minor, currency, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (order_id) DO NOTHING
		RETURNING `+orderColumns,
		orderID, userID, amountMinor, currency)
	order, err := scanOrder(row)
	if err == nil {
		return order, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, fmt.Errorf("payment: insert order: %w", err)
	}
	existing, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, false, err
	}
	return existing, false, nil
}

// Get fetches an order by its internal identifier.
func (s *PostgresStore) Get(ctx context.Context, orderID string) (Order, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE order_id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrUnknownOrder
	}
	if err != nil {
		return Order{}, fmt.Errorf("payment: get order: %w", err)
	}
	return order, nil
}

// GetByGatewayOrderID fetches an order by the gateway's order identifier.
func (s *PostgresStore) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (Order, error) {
	row := s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE gateway_order_id = $1`, gatewayOrderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrUnknownOrder
	}
	if err != nil {
		return Order{}, fmt.Errorf("payment: get order by gateway id: %w", err)
	}
	return order, nil
}

// AttachGatewayOrder binds the gateway order id and moves pending ->
// processing. The guard requires no gateway order to be attached yet, so a
// concurrent checkout retry cannot attach a second, divergent gateway order.
func (s *PostgresStore) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) (Order, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE payment_orders
		SET gateway_order_id = $2, status = 'processing', updated_at = now()
		WHERE order_id = $1 AND status = 'pending' AND gateway_order_id IS NULL
		RETURNING `+orderColumns,
		orderID, gatewayOrderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrStaleTransition
	}
	if err != nil {
		if isUniqueViolation(err) {
			return Order{}, fmt.Errorf("payment: gateway order id already bound: %w", ErrStaleTransition)
		}
		return Order{}, fmt.Errorf("payment: attach gateway order: %w", err)
	}
	return order, nil
}

// Transition applies from -> to as a compare-and-swap on the stored status.
// A non-empty gatewayPaymentID is bound as part of the same write; the unique
// index on gateway_payment_id turns a cross-order replay into
// ErrDuplicatePayment.
func (s *PostgresStore) Transition(ctx context.Context, orderID string, from, to Status, gatewayPaymentID string) (Order, error) {
	if !from.CanTransition(to) {
		return Order{}, fmt.Errorf("payment: illegal transition %s -> %s", from, to)
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE payment_orders
		SET status = $3,
		    gateway_payment_id = COALESCE(NULLIF($4, ''), gateway_payment_id),
		    updated_at = now()
		WHERE order_id = $1 AND status = $2
		RETURNING `+orderColumns,
		orderID, string(from), string(to), strings.TrimSpace(gatewayPaymentID))
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrStaleTransition
	}
	if err != nil {
		if isUniqueViolation(err) {
			return Order{}, ErrDuplicatePayment
		}
		return Order{}, fmt.Errorf("payment: transition %s -> %s: %w", from, to, err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	if err := row.Scan(&o.OrderID, &o.UserID, &o.GatewayOrderID, &o.AmountMinor, &o.Currency, &status, &o.GatewayPaymentID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	parsed, err := ParseStatus(status)
	if err != nil {
		return Order{}, err
	}
	o.Status = parsed
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
