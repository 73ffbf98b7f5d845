package events

// Topics emitted by the payment subsystem.
const (
	TopicOrderCreated     = "payment.order_created"
	TopicPaymentCompleted = "payment.completed"
	TopicPaymentFailed    = "payment.failed"
	TopicOrderCancelled   = "payment.cancelled"
	TopicDuplicatePayment = "payment.duplicate"
	TopicOrderMismatch    = "payment.order_mismatch"
)
