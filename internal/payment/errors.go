package payment

import "errors"

var (
	// ErrGatewayUnavailable indicates a transient provider or network
	// failure. Retryable with the same receipt; the order status is never
	// mutated on this path.
	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
	// ErrUnknownOrder indicates no payment order matches the supplied identifier.
	ErrUnknownOrder = errors.New("payment: unknown order")
	// ErrOrderMismatch indicates a confirmation referenced a gateway order id
	// that does not match the one stored for the order. Integrity violation,
	// always logged, never silently accepted.
	ErrOrderMismatch = errors.New("payment: gateway order id mismatch")
	// ErrInvalidSignature indicates the confirmation failed HMAC verification.
	ErrInvalidSignature = errors.New("payment: invalid signature")
	// ErrDuplicatePayment indicates the gateway payment id is already bound
	// to another order. Suspected replay, surfaced distinctly for audit.
	ErrDuplicatePayment = errors.New("payment: duplicate payment id")
	// ErrAlreadyTerminal indicates the order is in a terminal state and the
	// requested mutation cannot apply.
	ErrAlreadyTerminal = errors.New("payment: order already terminal")
	// ErrForbidden indicates the caller may not act on this order.
	ErrForbidden = errors.New("payment: forbidden")
	// ErrStaleTransition indicates the conditional update lost a race: the
	// stored status no longer matched the expected pre-state at write time.
	ErrStaleTransition = errors.New("payment: stale transition")
)
