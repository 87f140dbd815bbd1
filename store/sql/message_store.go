package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// fieldColumns is the closed set of message columns a StateUpdate may
// write. Anything outside it is rejected before the statement is built,
// so event payload content can never choose a column.
var fieldColumns = map[string]struct{}{
	core.FieldDelivered:             {},
	core.FieldOpened:                {},
	core.FieldClicked:               {},
	core.FieldBounced:               {},
	core.FieldSpamComplaint:         {},
	core.FieldSubscriptionChanged:   {},
	core.FieldDeliveredAt:           {},
	core.FieldLastOpenedAt:          {},
	core.FieldLastClickedAt:         {},
	core.FieldBouncedAt:             {},
	core.FieldSpamComplaintAt:       {},
	core.FieldSubscriptionChangedAt: {},
	core.FieldLastDeferredAt:        {},
	core.FieldDeliveryStatus:        {},
	core.FieldBounceType:            {},
	core.FieldBounceDetail:          {},
}

var counterColumns = map[string]struct{}{
	core.CounterOpened:   {},
	core.CounterClicked:  {},
	core.CounterDeferred: {},
}

type MessageStore struct {
	db   *bun.DB
	repo repository.Repository[*mailMessageRecord]
}

func NewMessageStore(db *bun.DB) (*MessageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*mailMessageRecord](db, messageHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message repository wiring: %w", err)
		}
	}
	return &MessageStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *MessageStore) Create(ctx context.Context, message core.SentMessage) (core.SentMessage, error) {
	if s == nil || s.repo == nil {
		return core.SentMessage{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	if strings.TrimSpace(message.Recipient) == "" {
		return core.SentMessage{}, fmt.Errorf("sqlstore: message recipient is required")
	}

	now := time.Now().UTC()
	record := newMailMessageRecord(message, now)

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.SentMessage{}, err
	}
	return created.toDomain(), nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID string) (core.SentMessage, error) {
	if s == nil || s.repo == nil {
		return core.SentMessage{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	record, err := s.repo.GetByID(ctx, strings.TrimSpace(messageID))
	if err != nil {
		return core.SentMessage{}, mapNotFound(err)
	}
	return record.toDomain(), nil
}

func (s *MessageStore) GetByProviderMessageID(ctx context.Context, providerMessageID string) (core.SentMessage, error) {
	if s == nil || s.db == nil {
		return core.SentMessage{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return core.SentMessage{}, core.ErrMessageNotFound
	}
	record := &mailMessageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_message_id = ?", providerMessageID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.SentMessage{}, mapNotFound(err)
	}
	return record.toDomain(), nil
}

func (s *MessageStore) FindLatestByRecipient(
	ctx context.Context,
	channel string,
	recipient string,
	since time.Time,
) (core.SentMessage, error) {
	if s == nil || s.db == nil {
		return core.SentMessage{}, fmt.Errorf("sqlstore: message store is not configured")
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return core.SentMessage{}, core.ErrMessageNotFound
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = core.ChannelPostmark
	}

	record := &mailMessageRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.channel = ?", channel).
		Where("?TableAlias.recipient = ?", recipient).
		Where("?TableAlias.date_triggered >= ?", since.UTC()).
		OrderExpr("?TableAlias.date_triggered DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.SentMessage{}, mapNotFound(err)
	}
	return record.toDomain(), nil
}

// ApplyStateUpdate writes the field map and advances the counters in a
// single UPDATE. Increments are expressed against the stored value, so
// concurrent events on the same record serialize at the database and
// none of their advances are lost.
func (s *MessageStore) ApplyStateUpdate(ctx context.Context, messageID string, update core.StateUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: message store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("sqlstore: message id is required")
	}
	if update.Empty() {
		return nil
	}

	query := s.db.NewUpdate().Model((*mailMessageRecord)(nil))
	for column, value := range update.Fields {
		if column == "provider_message_id" {
			return core.ErrImmutableMessageID
		}
		if _, ok := fieldColumns[column]; !ok {
			return fmt.Errorf("sqlstore: field %q is not an updatable message column", column)
		}
		query = query.Set("? = ?", bun.Ident(column), normalizeFieldValue(value))
	}
	for _, column := range update.Increments {
		if _, ok := counterColumns[column]; !ok {
			return fmt.Errorf("sqlstore: counter %q is not an updatable message column", column)
		}
		query = query.Set("? = ? + 1", bun.Ident(column), bun.Ident(column))
	}
	query = query.
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", messageID)

	result, err := query.Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.ErrMessageNotFound
	}
	return nil
}

func newMailMessageRecord(message core.SentMessage, now time.Time) *mailMessageRecord {
	id := strings.TrimSpace(message.ID)
	if id == "" {
		id = uuid.NewString()
	}
	channel := strings.TrimSpace(message.Channel)
	if channel == "" {
		channel = core.ChannelPostmark
	}
	dateTriggered := message.DateTriggered
	if dateTriggered.IsZero() {
		dateTriggered = now
	}
	metadata := message.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	record := &mailMessageRecord{
		ID:            id,
		Recipient:     strings.TrimSpace(message.Recipient),
		Channel:       channel,
		DateTriggered: dateTriggered.UTC(),

		Delivered:           message.Delivered,
		Opened:              message.Opened,
		Clicked:             message.Clicked,
		Bounced:             message.Bounced,
		SpamComplaint:       message.SpamComplaint,
		SubscriptionChanged: message.SubscriptionChanged,

		OpenedCount:   message.OpenedCount,
		ClickedCount:  message.ClickedCount,
		DeferredCount: message.DeferredCount,

		DeliveryStatus: strings.TrimSpace(message.DeliveryStatus),
		BounceType:     strings.TrimSpace(message.BounceType),
		BounceDetail:   strings.TrimSpace(message.BounceDetail),

		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if message.ProviderMessageID != nil {
		if value := strings.TrimSpace(*message.ProviderMessageID); value != "" {
			record.ProviderMessageID = &value
		}
	}
	record.DeliveredAt = cloneTime(message.DeliveredAt)
	record.LastOpenedAt = cloneTime(message.LastOpenedAt)
	record.LastClickedAt = cloneTime(message.LastClickedAt)
	record.BouncedAt = cloneTime(message.BouncedAt)
	record.SpamComplaintAt = cloneTime(message.SpamComplaintAt)
	record.SubscriptionChangedAt = cloneTime(message.SubscriptionChangedAt)
	record.LastDeferredAt = cloneTime(message.LastDeferredAt)
	return record
}

func (r *mailMessageRecord) toDomain() core.SentMessage {
	if r == nil {
		return core.SentMessage{}
	}
	message := core.SentMessage{
		ID:            r.ID,
		Recipient:     r.Recipient,
		Channel:       r.Channel,
		DateTriggered: r.DateTriggered,

		Delivered:           r.Delivered,
		Opened:              r.Opened,
		Clicked:             r.Clicked,
		Bounced:             r.Bounced,
		SpamComplaint:       r.SpamComplaint,
		SubscriptionChanged: r.SubscriptionChanged,

		OpenedCount:   r.OpenedCount,
		ClickedCount:  r.ClickedCount,
		DeferredCount: r.DeferredCount,

		DeliveryStatus: r.DeliveryStatus,
		BounceType:     r.BounceType,
		BounceDetail:   r.BounceDetail,

		Metadata:  r.Metadata,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ProviderMessageID != nil {
		value := *r.ProviderMessageID
		message.ProviderMessageID = &value
	}
	message.DeliveredAt = cloneTime(r.DeliveredAt)
	message.LastOpenedAt = cloneTime(r.LastOpenedAt)
	message.LastClickedAt = cloneTime(r.LastClickedAt)
	message.BouncedAt = cloneTime(r.BouncedAt)
	message.SpamComplaintAt = cloneTime(r.SpamComplaintAt)
	message.SubscriptionChangedAt = cloneTime(r.SubscriptionChangedAt)
	message.LastDeferredAt = cloneTime(r.LastDeferredAt)
	return message
}

// normalizeFieldValue keeps stored timestamps UTC regardless of the
// zone the event carried.
func normalizeFieldValue(value any) any {
	if ts, ok := value.(time.Time); ok {
		return ts.UTC()
	}
	return value
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrMessageNotFound
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(message, "no rows") || strings.Contains(message, "not found") {
		return core.ErrMessageNotFound
	}
	return err
}
