package webhooks

import (
	"context"
	"time"
)

const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusProcessed = "processed"
	DeliveryStatusRetry     = "retry_ready"
	DeliveryStatusDead      = "dead"
)

type DeliveryRecord struct {
	ID            string
	DeliveryID    string
	Status        string
	Attempts      int
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger is the opt-in replay guard. The source integration has
// no dedupe mechanism, so by default the processor runs without a ledger
// and replayed events double-count; wiring a ledger changes that contract
// deliberately rather than silently.
type DeliveryLedger interface {
	// Claim registers the delivery id. claimed=false means a previous
	// claim already exists and the event must be skipped as a duplicate.
	Claim(ctx context.Context, deliveryID string, payload []byte) (DeliveryRecord, bool, error)
	Complete(ctx context.Context, recordID string) error
	Fail(ctx context.Context, recordID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}
