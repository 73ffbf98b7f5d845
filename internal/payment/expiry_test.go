package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExpiryWorkerCancelsOrder(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeProvider{})
	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{OrderID: "ord-1", UserID: "user-1", Amount: "10.00"})
	require.NoError(t, err)

	payload, err := json.Marshal(expirePayload{OrderID: "ord-1"})
	require.NoError(t, err)

	worker := ExpiryWorker{Svc: svc, Log: zerolog.Nop()}
	require.NoError(t, worker.HandleExpire(context.Background(), asynq.NewTask(TypePaymentExpire, payload)))

	stored, err := store.Get(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
}

func TestExpiryWorkerSkipsMalformedPayload(t *testing.T) {
	worker := ExpiryWorker{Svc: newTestService(newMemStore(), &fakeProvider{}), Log: zerolog.Nop()}
	err := worker.HandleExpire(context.Background(), asynq.NewTask(TypePaymentExpire, []byte("{")))
	require.Error(t, err)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}
