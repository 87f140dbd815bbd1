package webhooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

type stubJournal struct {
	entries   []core.AppendMessageEventInput
	appendErr error
}

func (j *stubJournal) Append(_ context.Context, input core.AppendMessageEventInput) error {
	if j.appendErr != nil {
		return j.appendErr
	}
	j.entries = append(j.entries, input)
	return nil
}

func (j *stubJournal) ListByMessage(_ context.Context, messageID string) ([]core.MessageEvent, error) {
	out := []core.MessageEvent{}
	for _, entry := range j.entries {
		if entry.MessageID == messageID {
			out = append(out, core.MessageEvent{
				MessageID:  entry.MessageID,
				EventType:  entry.EventType,
				OccurredAt: entry.OccurredAt,
				Data:       entry.Data,
			})
		}
	}
	return out, nil
}

type stubNotifier struct {
	notifications []core.CRMNotification
	err           error
}

func (n *stubNotifier) Notify(_ context.Context, notification core.CRMNotification) error {
	if n.err != nil {
		return n.err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

type stubLedger struct {
	claimed  map[string]bool
	complete []string
	failed   []string
}

func (l *stubLedger) Claim(_ context.Context, deliveryID string, _ []byte) (DeliveryRecord, bool, error) {
	if l.claimed == nil {
		l.claimed = map[string]bool{}
	}
	if l.claimed[deliveryID] {
		return DeliveryRecord{}, false, nil
	}
	l.claimed[deliveryID] = true
	return DeliveryRecord{ID: "rec-" + deliveryID, DeliveryID: deliveryID, Attempts: 1}, true, nil
}

func (l *stubLedger) Complete(_ context.Context, recordID string) error {
	l.complete = append(l.complete, recordID)
	return nil
}

func (l *stubLedger) Fail(_ context.Context, recordID string, _ error, _ time.Time, _ int) error {
	l.failed = append(l.failed, recordID)
	return nil
}

func newTestProcessor(store *stubMessageStore, journal *stubJournal, notifier core.CRMNotifier) *Processor {
	resolver := NewResolver(store, "", 0)
	resolver.Now = fixedNow
	processor := NewProcessor(store, journal, resolver)
	processor.Notifier = notifier
	processor.Now = fixedNow
	return processor
}

func TestProcessPayloadAppliesDeliveryEvent(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{
			"pm-1": {ID: "msg-1"},
		},
	}
	journal := &stubJournal{}
	notifier := &stubNotifier{}
	processor := newTestProcessor(store, journal, notifier)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Delivery","MessageID":"pm-1","DeliveredAt":"2026-03-14T09:00:00Z"}`,
	))
	if summary.Received != 1 || summary.Applied != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected one state update, got %d", len(store.applied))
	}
	if store.applied[0].messageID != "msg-1" {
		t.Fatalf("expected update against msg-1, got %q", store.applied[0].messageID)
	}
	if len(journal.entries) != 1 || journal.entries[0].EventType != "delivery" {
		t.Fatalf("expected one delivery journal entry, got %v", journal.entries)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected one crm notification, got %d", len(notifier.notifications))
	}
	if notifier.notifications[0].ProviderMessageID != "pm-1" {
		t.Fatalf("expected provider message id on notification, got %q", notifier.notifications[0].ProviderMessageID)
	}
}

func TestProcessPayloadBatchContainsFailures(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{
			"pm-1": {ID: "msg-1"},
			"pm-2": {ID: "msg-2"},
		},
	}
	processor := newTestProcessor(store, &stubJournal{}, nil)

	// Middle event has a broken timestamp; the others must still apply.
	summary := processor.ProcessPayload(context.Background(), []byte(
		`[{"RecordType":"Open","MessageID":"pm-1"},`+
			`{"RecordType":"Bounce","MessageID":"pm-1","BouncedAt":"nope"},`+
			`{"RecordType":"Click","MessageID":"pm-2"}]`,
	))
	if summary.Received != 3 {
		t.Fatalf("expected 3 received, got %d", summary.Received)
	}
	if summary.Applied != 2 {
		t.Fatalf("expected 2 applied, got %d", summary.Applied)
	}
	if summary.Skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", summary.Skipped)
	}
	if len(store.applied) != 2 {
		t.Fatalf("expected 2 state updates, got %d", len(store.applied))
	}
}

func TestProcessPayloadSkipsEventsWithoutCorrelationKeys(t *testing.T) {
	store := &stubMessageStore{}
	processor := newTestProcessor(store, &stubJournal{}, nil)

	summary := processor.ProcessPayload(context.Background(), []byte(`{"RecordType":"Delivery"}`))
	if summary.Applied != 0 || summary.Skipped != 1 {
		t.Fatalf("expected silent skip, got %+v", summary)
	}
	if len(store.applied) != 0 {
		t.Fatal("uncorrelatable events must not write")
	}
}

func TestProcessPayloadUnmatchedEventIsAbsorbed(t *testing.T) {
	store := &stubMessageStore{}
	processor := newTestProcessor(store, &stubJournal{}, nil)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Open","MessageID":"pm-unknown"}`,
	))
	if summary.Unmatched != 1 {
		t.Fatalf("expected 1 unmatched, got %+v", summary)
	}
	if len(store.applied) != 0 {
		t.Fatal("unmatched events must not write")
	}
}

func TestProcessPayloadJournalFailureDoesNotFailEvent(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
	}
	journal := &stubJournal{appendErr: errors.New("journal down")}
	processor := newTestProcessor(store, journal, nil)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Delivery","MessageID":"pm-1"}`,
	))
	if summary.Applied != 1 {
		t.Fatalf("journal failure must not fail the event: %+v", summary)
	}
	if len(store.applied) != 1 {
		t.Fatal("state update must still land when the journal is down")
	}
}

func TestProcessPayloadNotifierFailureIsDiscarded(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
	}
	notifier := &stubNotifier{err: errors.New("crm down")}
	processor := newTestProcessor(store, &stubJournal{}, notifier)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Open","MessageID":"pm-1"}`,
	))
	if summary.Applied != 1 {
		t.Fatalf("notifier failure must not fail the event: %+v", summary)
	}
}

func TestProcessPayloadStoreFailureSkipsEvent(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
		applyErr:     errors.New("db down"),
	}
	notifier := &stubNotifier{}
	processor := newTestProcessor(store, &stubJournal{}, notifier)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Open","MessageID":"pm-1"}`,
	))
	if summary.Applied != 0 || summary.Skipped != 1 {
		t.Fatalf("expected skip on store failure, got %+v", summary)
	}
	if len(notifier.notifications) != 0 {
		t.Fatal("failed state updates must not notify")
	}
}

func TestProcessPayloadNotifiesViaRecordIDWhenEventOmitsIt(t *testing.T) {
	providerID := "pm-9"
	store := &stubMessageStore{
		byRecipient: func(string, string, time.Time) (core.SentMessage, error) {
			return core.SentMessage{ID: "msg-9", ProviderMessageID: &providerID}, nil
		},
	}
	notifier := &stubNotifier{}
	processor := newTestProcessor(store, &stubJournal{}, notifier)

	summary := processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Open","Recipient":"a@example.com"}`,
	))
	if summary.Applied != 1 {
		t.Fatalf("expected applied event, got %+v", summary)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected notification via stored provider id, got %d", len(notifier.notifications))
	}
	if notifier.notifications[0].ProviderMessageID != "pm-9" {
		t.Fatalf("expected stored provider id, got %q", notifier.notifications[0].ProviderMessageID)
	}
}

func TestProcessPayloadLedgerDedupe(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
	}
	processor := newTestProcessor(store, &stubJournal{}, nil)
	processor.Ledger = &stubLedger{}

	body := []byte(`{"RecordType":"Open","MessageID":"pm-1","OpenedAt":"2026-03-14T09:00:00Z"}`)
	first := processor.ProcessPayload(context.Background(), body)
	second := processor.ProcessPayload(context.Background(), body)

	if first.Applied != 1 {
		t.Fatalf("first delivery must apply: %+v", first)
	}
	if second.Deduped != 1 || second.Applied != 0 {
		t.Fatalf("replay must dedupe: %+v", second)
	}
	if len(store.applied) != 1 {
		t.Fatalf("expected exactly one write across replays, got %d", len(store.applied))
	}
}

func TestProcessPayloadWithoutLedgerReappliesReplays(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
	}
	processor := newTestProcessor(store, &stubJournal{}, nil)

	body := []byte(`{"RecordType":"Open","MessageID":"pm-1"}`)
	processor.ProcessPayload(context.Background(), body)
	processor.ProcessPayload(context.Background(), body)

	if len(store.applied) != 2 {
		t.Fatalf("without a ledger replays re-apply, got %d writes", len(store.applied))
	}
}

func TestProcessPayloadLedgerMarksFailedWrites(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
		applyErr:     errors.New("db down"),
	}
	ledger := &stubLedger{}
	processor := newTestProcessor(store, &stubJournal{}, nil)
	processor.Ledger = ledger

	processor.ProcessPayload(context.Background(), []byte(
		`{"RecordType":"Open","MessageID":"pm-1","OpenedAt":"2026-03-14T09:00:00Z"}`,
	))
	if len(ledger.failed) != 1 {
		t.Fatalf("expected claim marked failed, got %v", ledger.failed)
	}
	if len(ledger.complete) != 0 {
		t.Fatalf("failed writes must not complete the claim, got %v", ledger.complete)
	}
}

func TestProcessPayloadEmptyUpdateStillJournals(t *testing.T) {
	store := &stubMessageStore{
		byProviderID: map[string]core.SentMessage{"pm-1": {ID: "msg-1"}},
	}
	journal := &stubJournal{}
	processor := newTestProcessor(store, journal, nil)

	// An event with no record type produces no field writes but is
	// still journaled against the matched record.
	summary := processor.ProcessPayload(context.Background(), []byte(`{"MessageID":"pm-1"}`))
	if summary.Applied != 1 {
		t.Fatalf("expected applied, got %+v", summary)
	}
	if len(store.applied) != 0 {
		t.Fatal("empty updates must not write the message row")
	}
	if len(journal.entries) != 1 {
		t.Fatalf("expected journal entry for empty update, got %d", len(journal.entries))
	}
}
