package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// MessageStore is the persistence contract the webhook pipeline needs:
// a point lookup on the unique provider message id, the recency-windowed
// recipient fallback, and an atomic partial update per record.
type MessageStore interface {
	Create(ctx context.Context, message SentMessage) (SentMessage, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (SentMessage, error)
	// FindLatestByRecipient returns the most recently triggered record on
	// the given channel whose captured "to" address equals recipient and
	// whose DateTriggered is not before since. ErrMessageNotFound when the
	// window holds no match.
	FindLatestByRecipient(ctx context.Context, channel string, recipient string, since time.Time) (SentMessage, error)
	// ApplyStateUpdate writes update.Fields and advances update.Increments
	// against the current stored values in a single statement, so
	// concurrent events for the same record never lose counter updates.
	ApplyStateUpdate(ctx context.Context, messageID string, update StateUpdate) error
	GetByID(ctx context.Context, messageID string) (SentMessage, error)
}

type AppendMessageEventInput struct {
	MessageID  string
	EventType  string
	OccurredAt time.Time
	Data       map[string]any
}

// EventJournal is the append-only audit trail. Append failures are
// swallowed by callers; the journal is best-effort by contract.
type EventJournal interface {
	Append(ctx context.Context, input AppendMessageEventInput) error
	ListByMessage(ctx context.Context, messageID string) ([]MessageEvent, error)
}

// CRMNotifier pushes a status update to the external CRM. Implementations
// must be safe to call from the webhook path: bounded in time and free of
// panics. Callers discard the returned error after logging it.
type CRMNotifier interface {
	Notify(ctx context.Context, notification CRMNotification) error
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// JobWorkerHook observes worker lifecycle transitions for queued jobs,
// typically to log or count them.
type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
