package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pay/internal/events"
)

type stubStore struct {
	lastTopic   string
	lastOrderID string
	lastPayload []byte
	nextID      int64
}

func (s *stubStore) InsertEvent(_ context.Context, topic, orderID string, payload []byte) (events.Event, error) {
	s.lastTopic = topic
	s.lastOrderID = orderID
	s.lastPayload = payload
	s.nextID++
	return events.Event{
		ID:         s.nextID,
		Topic:      topic,
		OrderID:    orderID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}, nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	payload := map[string]any{"gatewayOrderId": "order_abc"}
	event, err := bus.Emit(context.Background(), events.TopicOrderCreated, "ord-1", payload)
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderCreated, store.lastTopic)
	require.Equal(t, "ord-1", store.lastOrderID)
	require.JSONEq(t, `{"gatewayOrderId":"order_abc"}`, string(store.lastPayload))
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)
}

func TestEmitNilPayloadDefaultsToEmptyObject(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store}

	_, err := bus.Emit(context.Background(), events.TopicPaymentCompleted, "ord-2", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(store.lastPayload))
}

func TestEmitRejectsMissingTopicOrOrder(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}

	_, err := bus.Emit(context.Background(), " ", "ord-3", nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicOrderCancelled, "", nil)
	require.Error(t, err)
}

func TestEmitNotifierFailureDoesNotLosePersistence(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{err: errors.New("boom")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	event, err := bus.Emit(context.Background(), events.TopicDuplicatePayment, "ord-4", nil)
	require.Error(t, err)
	require.NotZero(t, event.ID)
	require.Equal(t, events.TopicDuplicatePayment, store.lastTopic)
}
