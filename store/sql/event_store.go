package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MessageEventStore persists the append-only journal. Rows are inserted
// and read back, never updated or deleted.
type MessageEventStore struct {
	db   *bun.DB
	repo repository.Repository[*mailMessageEventRecord]
}

func NewMessageEventStore(db *bun.DB) (*MessageEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*mailMessageEventRecord](db, messageEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid message event repository wiring: %w", err)
		}
	}
	return &MessageEventStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *MessageEventStore) Append(ctx context.Context, input core.AppendMessageEventInput) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: message event store is not configured")
	}
	messageID := strings.TrimSpace(input.MessageID)
	if messageID == "" {
		return fmt.Errorf("sqlstore: message id is required")
	}
	eventType := strings.TrimSpace(input.EventType)
	if eventType == "" {
		eventType = "unknown"
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	data := input.Data
	if data == nil {
		data = map[string]any{}
	}

	_, err := s.repo.Create(ctx, &mailMessageEventRecord{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	})
	return err
}

func (s *MessageEventStore) ListByMessage(ctx context.Context, messageID string) ([]core.MessageEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: message event store is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, fmt.Errorf("sqlstore: message id is required")
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("message_id", "=", messageID),
		repository.OrderBy("occurred_at ASC"),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.OrderExpr("?TableAlias.created_at ASC")
		}),
	)
	if err != nil {
		return nil, err
	}

	out := make([]core.MessageEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (r *mailMessageEventRecord) toDomain() core.MessageEvent {
	if r == nil {
		return core.MessageEvent{}
	}
	return core.MessageEvent{
		ID:         r.ID,
		MessageID:  r.MessageID,
		EventType:  r.EventType,
		OccurredAt: r.OccurredAt,
		Data:       r.Data,
		CreatedAt:  r.CreatedAt,
	}
}
