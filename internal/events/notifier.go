package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier mirrors every emitted event to the structured log.
type LogNotifier struct {
	Log zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Log.Info().
		Str("topic", event.Topic).
		Str("order_id", event.OrderID).
		RawJSON("payload", event.Payload).
		Time("occurred_at", event.OccurredAt).
		Msg("payment event")
	return nil
}
