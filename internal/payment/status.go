package payment

import (
	"fmt"
	"strings"
)

// Status is the payment lifecycle state of a store order.
type Status string

const (
	// StatusPending marks an order created at checkout, before a gateway
	// order exists for it.
	StatusPending Status = "pending"
	// StatusProcessing marks an order with a gateway order attached,
	// awaiting confirmation.
	StatusProcessing Status = "processing"
	// StatusCompleted marks a verified, credited payment. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed marks a rejected or unverifiable payment. Terminal.
	StatusFailed Status = "failed"
	// StatusCancelled marks an order cancelled before a confirmation landed. Terminal.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	}
	return false
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, nil
	case StatusProcessing:
		return StatusProcessing, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusFailed:
		return StatusFailed, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("payment: unknown status %q", value)
}
