package webhooks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

const defaultNotifyTimeout = 30 * time.Second

// Summary reports what happened to one payload. The endpoint contract
// does not expose it to callers; it exists for logging, metrics, and
// tests.
type Summary struct {
	Received  int
	Applied   int
	Skipped   int
	Deduped   int
	Unmatched int
}

// Processor runs the per-event pipeline: normalize, correlate, apply the
// state transition, journal, notify. Every failure past signature
// verification is contained to the event it belongs to.
type Processor struct {
	Store    core.MessageStore
	Journal  core.EventJournal
	Resolver *Resolver
	Notifier core.CRMNotifier
	Logger   core.Logger
	Metrics  core.MetricsRecorder

	// Ledger enables replay dedupe when set. Nil preserves the source
	// behavior: replayed events re-increment counters and re-journal.
	Ledger      DeliveryLedger
	RetryPolicy RetryPolicy
	MaxAttempts int

	NotifyTimeout time.Duration
	Now           func() time.Time
}

func NewProcessor(store core.MessageStore, journal core.EventJournal, resolver *Resolver) *Processor {
	return &Processor{
		Store:         store,
		Journal:       journal,
		Resolver:      resolver,
		Metrics:       core.NopMetricsRecorder{},
		RetryPolicy:   ExponentialRetryPolicy{},
		MaxAttempts:   8,
		NotifyTimeout: defaultNotifyTimeout,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ProcessPayload fans a raw body out into events and attempts each one.
// It never returns an error: the endpoint acknowledges regardless, so
// every failure is absorbed here, counted, and logged.
func (p *Processor) ProcessPayload(ctx context.Context, body []byte) Summary {
	summary := Summary{}
	if p == nil || p.Store == nil || p.Resolver == nil {
		return summary
	}
	for _, raw := range DecodePayload(body) {
		summary.Received++
		outcome := p.processRawEvent(ctx, raw)
		switch outcome {
		case outcomeApplied:
			summary.Applied++
		case outcomeDeduped:
			summary.Deduped++
		case outcomeUnmatched:
			summary.Unmatched++
			summary.Skipped++
		default:
			summary.Skipped++
		}
	}
	p.recordCounter(ctx, "mailhooks.webhook.payloads.total", 1, map[string]string{
		"applied": fmt.Sprint(summary.Applied > 0),
	})
	return summary
}

type eventOutcome string

const (
	outcomeApplied   eventOutcome = "applied"
	outcomeSkipped   eventOutcome = "skipped"
	outcomeDeduped   eventOutcome = "deduped"
	outcomeUnmatched eventOutcome = "unmatched"
)

func (p *Processor) processRawEvent(ctx context.Context, raw map[string]any) eventOutcome {
	event, err := NormalizeEvent(raw, p.Now)
	if err != nil {
		p.logInfo(ctx, "skipping malformed webhook event", map[string]any{"error": err.Error()})
		p.countEvent(ctx, "", outcomeSkipped)
		return outcomeSkipped
	}
	if !event.HasCorrelationKey() {
		p.countEvent(ctx, event.RawType, outcomeSkipped)
		return outcomeSkipped
	}

	var claim *DeliveryRecord
	if p.Ledger != nil {
		deliveryID := dedupeKey(event)
		if deliveryID != "" {
			record, claimed, claimErr := p.Ledger.Claim(ctx, deliveryID, nil)
			if claimErr != nil {
				p.logError(ctx, "webhook delivery claim failed", map[string]any{
					"delivery_id": deliveryID,
					"error":       claimErr.Error(),
				})
			} else if !claimed {
				p.countEvent(ctx, event.RawType, outcomeDeduped)
				return outcomeDeduped
			} else {
				claim = &record
			}
		}
	}

	message, err := p.Resolver.Resolve(ctx, event)
	if err != nil {
		// Correlation misses are part of the accept-everything contract.
		if claim != nil {
			_ = p.Ledger.Complete(ctx, claim.ID)
		}
		p.countEvent(ctx, event.RawType, outcomeUnmatched)
		return outcomeUnmatched
	}

	update := BuildStateUpdate(event)
	if !update.Empty() {
		if err := p.Store.ApplyStateUpdate(ctx, message.ID, update); err != nil {
			p.logError(ctx, "webhook state update failed", map[string]any{
				"message_id": message.ID,
				"event_type": update.EventType,
				"error":      err.Error(),
			})
			if claim != nil {
				nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(claim.Attempts))
				_ = p.Ledger.Fail(ctx, claim.ID, err, nextAttemptAt, p.maxAttempts())
			}
			p.countEvent(ctx, event.RawType, outcomeSkipped)
			return outcomeSkipped
		}
	}

	p.appendJournal(ctx, message.ID, update)
	if claim != nil {
		_ = p.Ledger.Complete(ctx, claim.ID)
	}
	p.notify(ctx, message, event)
	p.countEvent(ctx, event.RawType, outcomeApplied)
	return outcomeApplied
}

// appendJournal records the audit entry. The journal is best-effort by
// contract: a failed append never fails the event.
func (p *Processor) appendJournal(ctx context.Context, messageID string, update core.StateUpdate) {
	if p.Journal == nil {
		return
	}
	err := p.Journal.Append(ctx, core.AppendMessageEventInput{
		MessageID:  messageID,
		EventType:  update.EventType,
		OccurredAt: update.OccurredAt,
		Data:       update.Journal,
	})
	if err != nil {
		p.logError(ctx, "journal append failed", map[string]any{
			"message_id": messageID,
			"event_type": update.EventType,
			"error":      err.Error(),
		})
	}
}

// notify pushes the event to the CRM side channel. The call is
// time-boxed and its error discarded after logging: a slow or broken
// CRM must never delay or fail webhook ingestion.
func (p *Processor) notify(ctx context.Context, message core.SentMessage, event core.InboundEvent) {
	if p.Notifier == nil {
		return
	}
	providerMessageID := strings.TrimSpace(event.MessageID)
	if providerMessageID == "" && message.ProviderMessageID != nil {
		providerMessageID = strings.TrimSpace(*message.ProviderMessageID)
	}
	if providerMessageID == "" {
		return
	}

	timeout := p.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	notifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.Notifier.Notify(notifyCtx, core.CRMNotification{
		ProviderMessageID: providerMessageID,
		Kind:              event.Kind,
		RawType:           event.RawType,
		OccurredAt:        event.OccurredAt,
		Event:             event.Raw,
	})
	if err != nil {
		p.logInfo(ctx, "crm notification skipped", map[string]any{
			"provider_message_id": providerMessageID,
			"event_type":          event.RawType,
			"error":               err.Error(),
		})
	}
}

// dedupeKey derives a replay key for ledger-backed processing. Events
// without a message id cannot be deduped safely and bypass the ledger.
func dedupeKey(event core.InboundEvent) string {
	messageID := strings.TrimSpace(event.MessageID)
	if messageID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%d", messageID, event.RawType, event.OccurredAt.UTC().Unix())
}

func (p *Processor) countEvent(ctx context.Context, rawType string, outcome eventOutcome) {
	kind := strings.TrimSpace(rawType)
	if kind == "" {
		kind = "unknown"
	}
	p.recordCounter(ctx, "mailhooks.webhook.events.total", 1, map[string]string{
		"kind":    kind,
		"outcome": string(outcome),
	})
}

func (p *Processor) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if p == nil || p.Metrics == nil {
		return
	}
	p.Metrics.IncCounter(ctx, name, value, tags)
}

func (p *Processor) logInfo(ctx context.Context, message string, fields map[string]any) {
	p.logWithLevel(ctx, "info", message, fields)
}

func (p *Processor) logError(ctx context.Context, message string, fields map[string]any) {
	p.logWithLevel(ctx, "error", message, fields)
}

func (p *Processor) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if p == nil || p.Logger == nil {
		return
	}
	logger := p.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(core.CopyAnyMap(fields))
	}
	args := flattenLogFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func flattenLogFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}
