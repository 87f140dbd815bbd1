package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

// timestamp layouts the provider is known to emit, most specific first.
var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// timestampPrecedence is the field order used to resolve an event's
// occurrence time; the first present value wins.
var timestampPrecedence = []string{
	"DeliveredAt",
	"BouncedAt",
	"ChangedAt",
	"ClickedAt",
	"OpenedAt",
}

// DecodePayload splits a raw webhook body into its raw event objects.
// A body may be a single JSON object or an array of objects; anything
// undecodable degrades to one empty object, which later drops silently
// for lack of correlation keys.
func DecodePayload(body []byte) []map[string]any {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return []map[string]any{{}}
	}
	if strings.HasPrefix(trimmed, "[") {
		var batch []map[string]any
		if err := json.Unmarshal(body, &batch); err != nil || len(batch) == 0 {
			return []map[string]any{{}}
		}
		for i, raw := range batch {
			if raw == nil {
				batch[i] = map[string]any{}
			}
		}
		return batch
	}
	single := map[string]any{}
	if err := json.Unmarshal(body, &single); err != nil {
		return []map[string]any{{}}
	}
	return []map[string]any{single}
}

// NormalizeEvent maps one raw provider object onto the internal event
// shape. A present but unparseable timestamp fails only this event;
// callers skip it and continue with the rest of the batch.
func NormalizeEvent(raw map[string]any, now func() time.Time) (core.InboundEvent, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	kind, rawType := core.ParseEventKind(stringField(raw, "RecordType", "Type"))

	occurredAt := now().UTC()
	for _, key := range timestampPrecedence {
		value, present := raw[key]
		if !present || value == nil {
			continue
		}
		text, ok := value.(string)
		if !ok {
			return core.InboundEvent{}, fmt.Errorf("webhooks: parse event timestamp %s: %w", key, core.ErrInvalidEventTime)
		}
		// Empty values count as absent; the scan moves on to the next
		// candidate key instead of failing the event.
		if strings.TrimSpace(text) == "" {
			continue
		}
		parsed, err := parseEventTime(text)
		if err != nil {
			return core.InboundEvent{}, fmt.Errorf("webhooks: parse event timestamp %s: %w", key, err)
		}
		occurredAt = parsed.UTC()
		break
	}

	return core.InboundEvent{
		Kind:       kind,
		RawType:    rawType,
		MessageID:  stringField(raw, "MessageID"),
		Recipient:  stringField(raw, "Recipient", "Email"),
		OccurredAt: occurredAt,
		Raw:        raw,
	}, nil
}

func parseEventTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range eventTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidEventTime, value)
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		value, present := raw[key]
		if !present || value == nil {
			continue
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}
