// Package events persists payment transition events as the subsystem's audit
// trail and fans them out to downstream notifiers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event is a persisted audit record for a payment transition.
type Event struct {
	ID         int64
	Topic      string
	OrderID    string
	Payload    []byte
	OccurredAt time.Time
}

// EventStore defines the persistence operations required by the bus.
type EventStore interface {
	InsertEvent(ctx context.Context, topic, orderID string, payload []byte) (Event, error)
}

// Notifier reacts to emitted events (logging, metrics, downstream hooks).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus persists events and dispatches them to all configured notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit records the event and dispatches it. Notifier failures are joined into
// the returned error but never prevent persistence.
func (b *Bus) Emit(ctx context.Context, topic, orderID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(orderID) == "" {
		return Event{}, errors.New("events: order id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	ev, err := b.Store.InsertEvent(ctx, topic, orderID, encoded)
	if err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}
