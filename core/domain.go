package core

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrMessageNotFound    = errors.New("core: sent message not found")
	ErrNoCorrelationKeys  = errors.New("core: event carries neither message id nor recipient")
	ErrInvalidEventTime   = errors.New("core: invalid event timestamp")
	ErrNotifierDisabled   = errors.New("core: crm notifier is not configured")
	ErrLookupUnresolved   = errors.New("core: crm record not found for provider message id")
	ErrImmutableMessageID = errors.New("core: provider message id is immutable once set")
)

// ChannelPostmark tags message records produced by the Postmark send
// integration. The fallback correlation search is scoped to this channel.
const ChannelPostmark = "postmark"

// EventKind is the closed set of recognized delivery-event types. Anything
// the provider sends outside this set is carried as KindOther with the raw
// tag preserved on the event.
type EventKind string

const (
	KindDelivery           EventKind = "delivery"
	KindOpen               EventKind = "open"
	KindClick              EventKind = "click"
	KindBounce             EventKind = "bounce"
	KindSpamComplaint      EventKind = "spamcomplaint"
	KindSubscriptionChange EventKind = "subscriptionchange"
	KindTransient          EventKind = "transient"
	KindOther              EventKind = "other"
)

// ParseEventKind lower-cases the provider record type and classifies it.
// The raw (lower-cased) tag is returned alongside so unknown kinds keep
// their original name for status labels and journal entries.
func ParseEventKind(recordType string) (EventKind, string) {
	raw := strings.ToLower(strings.TrimSpace(recordType))
	switch raw {
	case string(KindDelivery),
		string(KindOpen),
		string(KindClick),
		string(KindBounce),
		string(KindSpamComplaint),
		string(KindSubscriptionChange),
		string(KindTransient):
		return EventKind(raw), raw
	default:
		return KindOther, raw
	}
}

// InboundEvent is one normalized webhook event. It is ephemeral; only its
// effects on the matched SentMessage are persisted.
type InboundEvent struct {
	Kind       EventKind
	RawType    string
	MessageID  string
	Recipient  string
	OccurredAt time.Time
	Raw        map[string]any
}

// HasCorrelationKey reports whether the event can be matched to a record
// at all. Events without a message id and without a recipient are dropped.
func (e InboundEvent) HasCorrelationKey() bool {
	return strings.TrimSpace(e.MessageID) != "" || strings.TrimSpace(e.Recipient) != ""
}

// SentMessage is one outbound message attempt. Records are created by the
// send path and mutated only by webhook-driven state updates; they are
// never deleted.
type SentMessage struct {
	ID                string
	ProviderMessageID *string
	Recipient         string
	Channel           string
	DateTriggered     time.Time

	Delivered           bool
	Opened              bool
	Clicked             bool
	Bounced             bool
	SpamComplaint       bool
	SubscriptionChanged bool

	OpenedCount   int
	ClickedCount  int
	DeferredCount int

	DeliveredAt           *time.Time
	LastOpenedAt          *time.Time
	LastClickedAt         *time.Time
	BouncedAt             *time.Time
	SpamComplaintAt       *time.Time
	SubscriptionChangedAt *time.Time
	LastDeferredAt        *time.Time

	DeliveryStatus string
	BounceType     string
	BounceDetail   string

	Metadata map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageEvent is one append-only journal entry attached to a message.
// Entries are never rewritten or removed.
type MessageEvent struct {
	ID         string
	MessageID  string
	EventType  string
	OccurredAt time.Time
	Data       map[string]any
	CreatedAt  time.Time
}

// Field names accepted in StateUpdate.Fields. The sql store maps them
// one-to-one onto columns of the message table.
const (
	FieldDelivered             = "delivered"
	FieldOpened                = "opened"
	FieldClicked               = "clicked"
	FieldBounced               = "bounced"
	FieldSpamComplaint         = "spam_complaint"
	FieldSubscriptionChanged   = "subscription_changed"
	FieldDeliveredAt           = "delivered_at"
	FieldLastOpenedAt          = "last_opened_at"
	FieldLastClickedAt         = "last_clicked_at"
	FieldBouncedAt             = "bounced_at"
	FieldSpamComplaintAt       = "spam_complaint_at"
	FieldSubscriptionChangedAt = "subscription_changed_at"
	FieldLastDeferredAt        = "last_deferred_at"
	FieldDeliveryStatus        = "delivery_status"
	FieldBounceType            = "bounce_type"
	FieldBounceDetail          = "bounce_detail"
)

// Counter columns advanced atomically in the same write as the field map.
const (
	CounterOpened   = "opened_count"
	CounterClicked  = "clicked_count"
	CounterDeferred = "deferred_count"
)

// StateUpdate is the complete effect of one event on one message record:
// a partial field map, zero or more counter advances, and one journal
// entry. The store applies fields and counters as a single write so a
// reader never observes a half-applied event; the journal append rides
// along best-effort.
type StateUpdate struct {
	EventType  string
	OccurredAt time.Time
	Fields     map[string]any
	Increments []string
	Journal    map[string]any
}

// Empty reports whether the update would write nothing to the message row.
// Even empty updates still journal the event.
func (u StateUpdate) Empty() bool {
	return len(u.Fields) == 0 && len(u.Increments) == 0
}

// CRMNotification carries what the external notifier needs to mirror a
// delivery event onto the CRM record correlated by provider message id.
type CRMNotification struct {
	ProviderMessageID string
	Kind              EventKind
	RawType           string
	OccurredAt        time.Time
	Event             map[string]any
}

// JobExecutionMessage is the queue envelope for asynchronous dispatch,
// mirrored onto go-job by the adapters/gojob package.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

// JobWorkerEvent carries the context of one worker lifecycle transition.
type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

func CopyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(input))
	for key, value := range input {
		copied[key] = value
	}
	return copied
}
