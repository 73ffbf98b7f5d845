package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists events into the payment_events table.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// InsertEvent appends an event row and returns the stored record.
func (s *PostgresStore) InsertEvent(ctx context.Context, topic, orderID string, payload []byte) (Event, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO payment_events (topic, order_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, order_id, payload, occurred_at`,
		topic, orderID, payload)
	var ev Event
	if err := row.Scan(&ev.ID, &ev.Topic, &ev.OrderID, &ev.Payload, &ev.OccurredAt); err != nil {
		return Event{}, fmt.Errorf("events: insert: %w", err)
	}
	return ev, nil
}
