package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

// NotifyJobID names the queued job that carries a CRM notification to
// the worker side.
const NotifyJobID = "mailhooks.crm.notify"

// QueueNotifier defers CRM updates to a background worker instead of
// calling the CRM from the webhook request path.
type QueueNotifier struct {
	enqueuer core.JobEnqueuer
}

func NewQueueNotifier(enqueuer core.JobEnqueuer) (*QueueNotifier, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("crm: job enqueuer is required")
	}
	return &QueueNotifier{enqueuer: enqueuer}, nil
}

func (n *QueueNotifier) Notify(ctx context.Context, notification core.CRMNotification) error {
	if n == nil || n.enqueuer == nil {
		return fmt.Errorf("crm: queue notifier is not configured")
	}
	providerMessageID := strings.TrimSpace(notification.ProviderMessageID)
	if providerMessageID == "" {
		return fmt.Errorf("crm: notification has no provider message id")
	}
	msg := &core.JobExecutionMessage{
		JobID:      NotifyJobID,
		Parameters: encodeNotification(notification),
		IdempotencyKey: strings.Join([]string{
			providerMessageID,
			notification.RawType,
			notification.OccurredAt.UTC().Format(time.RFC3339),
		}, ":"),
	}
	return n.enqueuer.Enqueue(ctx, msg)
}

// Worker drains queued notifications and replays them through a
// synchronous notifier. Delivery failures are nacked for redelivery;
// malformed messages are dead-lettered.
type Worker struct {
	dequeuer   core.JobDequeuer
	notifier   core.CRMNotifier
	logger     core.Logger
	retryDelay time.Duration
}

func NewWorker(dequeuer core.JobDequeuer, notifier core.CRMNotifier) (*Worker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("crm: job dequeuer is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("crm: delegate notifier is required")
	}
	return &Worker{
		dequeuer:   dequeuer,
		notifier:   notifier,
		retryDelay: 30 * time.Second,
	}, nil
}

func (w *Worker) WithLogger(logger core.Logger) *Worker {
	if w != nil {
		w.logger = logger
	}
	return w
}

// Run processes deliveries until the context is canceled or the
// dequeuer reports it is closed.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.dequeuer == nil || w.notifier == nil {
		return fmt.Errorf("crm: worker is not configured")
	}
	for {
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("crm: dequeue notification: %w", err)
		}
		w.handle(ctx, delivery)
	}
}

func (w *Worker) handle(ctx context.Context, delivery core.JobDelivery) {
	if delivery == nil {
		return
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != NotifyJobID {
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unexpected job id"})
		return
	}
	notification, err := decodeNotification(msg.Parameters)
	if err != nil {
		w.logError(ctx, "drop malformed crm notification", err, msg.IdempotencyKey)
		_ = delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		return
	}
	if err := w.notifier.Notify(ctx, notification); err != nil {
		if errors.Is(err, core.ErrNotifierDisabled) || errors.Is(err, core.ErrLookupUnresolved) {
			// Retrying cannot resolve these; the record simply is
			// not there or the integration is off.
			_ = delivery.Ack(ctx)
			return
		}
		w.logError(ctx, "crm notification failed, requeueing", err, msg.IdempotencyKey)
		_ = delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: w.retryDelay, Reason: err.Error()})
		return
	}
	_ = delivery.Ack(ctx)
}

func (w *Worker) logError(ctx context.Context, message string, err error, key string) {
	if w == nil || w.logger == nil {
		return
	}
	w.logger.WithContext(ctx).Error(message, "error", err, "idempotency_key", key)
}

func encodeNotification(notification core.CRMNotification) map[string]any {
	return map[string]any{
		"provider_message_id": notification.ProviderMessageID,
		"kind":                string(notification.Kind),
		"raw_type":            notification.RawType,
		"occurred_at":         notification.OccurredAt.UTC().Format(time.RFC3339Nano),
		"event":               core.CopyAnyMap(notification.Event),
	}
}

func decodeNotification(parameters map[string]any) (core.CRMNotification, error) {
	providerMessageID, _ := parameters["provider_message_id"].(string)
	if strings.TrimSpace(providerMessageID) == "" {
		return core.CRMNotification{}, fmt.Errorf("crm: notification parameters missing provider_message_id")
	}
	kind, _ := parameters["kind"].(string)
	rawType, _ := parameters["raw_type"].(string)
	occurredAtText, _ := parameters["occurred_at"].(string)
	occurredAt, err := time.Parse(time.RFC3339Nano, occurredAtText)
	if err != nil {
		return core.CRMNotification{}, fmt.Errorf("crm: notification parameters have invalid occurred_at: %w", err)
	}
	event, _ := parameters["event"].(map[string]any)
	return core.CRMNotification{
		ProviderMessageID: providerMessageID,
		Kind:              core.EventKind(kind),
		RawType:           rawType,
		OccurredAt:        occurredAt,
		Event:             core.CopyAnyMap(event),
	}, nil
}

var _ core.CRMNotifier = (*QueueNotifier)(nil)
