package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type mailMessageRecord struct {
	bun.BaseModel `bun:"table:mail_messages,alias:mm"`

	ID                string    `bun:"id,pk"`
	ProviderMessageID *string   `bun:"provider_message_id"`
	Recipient         string    `bun:"recipient,notnull"`
	Channel           string    `bun:"channel,notnull"`
	DateTriggered     time.Time `bun:"date_triggered,notnull"`

	Delivered           bool `bun:"delivered,notnull"`
	Opened              bool `bun:"opened,notnull"`
	Clicked             bool `bun:"clicked,notnull"`
	Bounced             bool `bun:"bounced,notnull"`
	SpamComplaint       bool `bun:"spam_complaint,notnull"`
	SubscriptionChanged bool `bun:"subscription_changed,notnull"`

	OpenedCount   int `bun:"opened_count,notnull"`
	ClickedCount  int `bun:"clicked_count,notnull"`
	DeferredCount int `bun:"deferred_count,notnull"`

	DeliveredAt           *time.Time `bun:"delivered_at,nullzero"`
	LastOpenedAt          *time.Time `bun:"last_opened_at,nullzero"`
	LastClickedAt         *time.Time `bun:"last_clicked_at,nullzero"`
	BouncedAt             *time.Time `bun:"bounced_at,nullzero"`
	SpamComplaintAt       *time.Time `bun:"spam_complaint_at,nullzero"`
	SubscriptionChangedAt *time.Time `bun:"subscription_changed_at,nullzero"`
	LastDeferredAt        *time.Time `bun:"last_deferred_at,nullzero"`

	DeliveryStatus string `bun:"delivery_status"`
	BounceType     string `bun:"bounce_type"`
	BounceDetail   string `bun:"bounce_detail"`

	Metadata map[string]any `bun:"metadata,type:jsonb,notnull"`

	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type mailMessageEventRecord struct {
	bun.BaseModel `bun:"table:mail_message_events,alias:mme"`

	ID         string         `bun:"id,pk"`
	MessageID  string         `bun:"message_id,notnull"`
	EventType  string         `bun:"event_type,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,notnull"`
	Data       map[string]any `bun:"data,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:mail_webhook_deliveries,alias:mwd"`

	ID            string     `bun:"id,pk"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	LastError     string     `bun:"last_error"`
	Payload       []byte     `bun:"payload"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
