package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TypePaymentExpire is the task type for deferred payment-window expiry.
const TypePaymentExpire = "payment:expire"

// expireQueue is the asynq queue expiry tasks land on.
const expireQueue = "payments"

type expirePayload struct {
	OrderID string `json:"order_id"`
}

// AsynqEnqueuer schedules expiry tasks on Redis via asynq. The task id is
// derived from the order id so a retried checkout does not stack a second
// sweep for the same order.
type AsynqEnqueuer struct {
	Client *asynq.Client
}

// Schedule enqueues an expiry sweep for orderID to run after delay.
func (e AsynqEnqueuer) Schedule(ctx context.Context, orderID string, delay time.Duration) error {
	if e.Client == nil {
		return fmt.Errorf("payment: asynq client not configured")
	}
	payload, err := json.Marshal(expirePayload{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("payment: encode expiry payload: %w", err)
	}
	task := asynq.NewTask(TypePaymentExpire, payload)
	_, err = e.Client.EnqueueContext(ctx, task,
		asynq.ProcessIn(delay),
		asynq.TaskID("expire:"+orderID),
		asynq.Queue(expireQueue),
		asynq.MaxRetry(3),
	)
	if err == asynq.ErrTaskIDConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("payment: enqueue expiry: %w", err)
	}
	return nil
}

// ExpiryWorker consumes expiry tasks and closes out orders whose payment
// window elapsed.
type ExpiryWorker struct {
	Svc *Service
	Log zerolog.Logger
}

// Register attaches the worker's handlers to mux.
func (w ExpiryWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePaymentExpire, w.HandleExpire)
}

// HandleExpire processes one expiry task.
func (w ExpiryWorker) HandleExpire(ctx context.Context, task *asynq.Task) error {
	var payload expirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("payment: decode expiry payload: %w", asynq.SkipRetry)
	}
	if err := w.Svc.Expire(ctx, payload.OrderID); err != nil {
		w.Log.Error().Err(err).Str("order_id", payload.OrderID).Msg("payment expiry sweep failed")
		return err
	}
	return nil
}
