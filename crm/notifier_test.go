package crm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

type stubEmailLookup struct {
	emailID string
	err     error
	calls   int
	lastID  string
}

func (s *stubEmailLookup) LookupEmailID(_ context.Context, providerMessageID string) (string, error) {
	s.calls++
	s.lastID = providerMessageID
	if s.err != nil {
		return "", s.err
	}
	return s.emailID, nil
}

type stubEmailUpdater struct {
	err       error
	calls     int
	lastID    string
	lastAttrs map[string]any
}

func (s *stubEmailUpdater) UpdateEmail(_ context.Context, emailID string, attributes map[string]any) error {
	s.calls++
	s.lastID = emailID
	s.lastAttrs = attributes
	return s.err
}

func notificationAt(kind core.EventKind, event map[string]any) core.CRMNotification {
	return core.CRMNotification{
		ProviderMessageID: "pm-1",
		Kind:              kind,
		RawType:           string(kind),
		OccurredAt:        time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Event:             event,
	}
}

func TestBuildEmailAttributes_Delivery(t *testing.T) {
	attrs := BuildEmailAttributes(notificationAt(core.KindDelivery, map[string]any{
		"Recipient": "jane@example.com",
	}))
	if attrs["status"] != "delivered" {
		t.Fatalf("unexpected status %v", attrs["status"])
	}
	want := "Delivered at 2026-03-14T09:30:00Z to jane@example.com"
	if attrs["description"] != want {
		t.Fatalf("unexpected description %v", attrs["description"])
	}

	attrs = BuildEmailAttributes(notificationAt(core.KindDelivery, map[string]any{
		"Email": "fallback@example.com",
	}))
	if desc, _ := attrs["description"].(string); !strings.HasSuffix(desc, "to fallback@example.com") {
		t.Fatalf("Email fallback not applied: %v", attrs["description"])
	}

	attrs = BuildEmailAttributes(notificationAt(core.KindDelivery, nil))
	if desc, _ := attrs["description"].(string); !strings.HasSuffix(desc, "to unknown") {
		t.Fatalf("missing recipient fallback: %v", attrs["description"])
	}
}

func TestBuildEmailAttributes_Open(t *testing.T) {
	attrs := BuildEmailAttributes(notificationAt(core.KindOpen, map[string]any{
		"Geo":      map[string]any{"City": "Lisbon"},
		"Platform": "Desktop",
		"Client":   "Thunderbird",
	}))
	if attrs["status"] != "opened" {
		t.Fatalf("unexpected status %v", attrs["status"])
	}
	want := "Opened at 2026-03-14T09:30:00Z from Lisbon (Platform: Desktop, Client: Thunderbird)"
	if attrs["description"] != want {
		t.Fatalf("unexpected description %v", attrs["description"])
	}

	attrs = BuildEmailAttributes(notificationAt(core.KindOpen, map[string]any{}))
	want = "Opened at 2026-03-14T09:30:00Z from unknown location (Platform: unknown, Client: unknown)"
	if attrs["description"] != want {
		t.Fatalf("fallbacks not applied: %v", attrs["description"])
	}
}

func TestBuildEmailAttributes_Click(t *testing.T) {
	attrs := BuildEmailAttributes(notificationAt(core.KindClick, map[string]any{
		"OriginalLink": "https://example.com/offer",
	}))
	if attrs["status"] != "clicked" {
		t.Fatalf("unexpected status %v", attrs["status"])
	}
	if attrs["description"] != "Clicked at 2026-03-14T09:30:00Z. Link: https://example.com/offer" {
		t.Fatalf("unexpected description %v", attrs["description"])
	}

	attrs = BuildEmailAttributes(notificationAt(core.KindClick, map[string]any{
		"OriginalLinkUrl": "https://example.com/alt",
	}))
	if desc, _ := attrs["description"].(string); !strings.HasSuffix(desc, "https://example.com/alt") {
		t.Fatalf("OriginalLinkUrl fallback not applied: %v", attrs["description"])
	}
}

func TestBuildEmailAttributes_Bounce(t *testing.T) {
	attrs := BuildEmailAttributes(notificationAt(core.KindBounce, map[string]any{
		"Type":        "HardBounce",
		"Description": "The server was unable to deliver your message",
	}))
	if attrs["status"] != "bounced" {
		t.Fatalf("unexpected status %v", attrs["status"])
	}
	want := "Bounced at 2026-03-14T09:30:00Z. Type: HardBounce, Reason: The server was unable to deliver your message"
	if attrs["description"] != want {
		t.Fatalf("unexpected description %v", attrs["description"])
	}
}

func TestBuildEmailAttributes_SpamComplaint(t *testing.T) {
	attrs := BuildEmailAttributes(notificationAt(core.KindSpamComplaint, nil))
	if attrs["status"] != "spam_complaint" {
		t.Fatalf("unexpected status %v", attrs["status"])
	}
	if attrs["description"] != "Spam complaint at 2026-03-14T09:30:00Z." {
		t.Fatalf("unexpected description %v", attrs["description"])
	}
}

func TestBuildEmailAttributes_UnknownKind(t *testing.T) {
	notification := notificationAt(core.KindOther, nil)
	notification.RawType = "subscriptionpause"
	attrs := BuildEmailAttributes(notification)
	if _, ok := attrs["status"]; ok {
		t.Fatalf("unknown kinds must not set a status, got %v", attrs["status"])
	}
	if attrs["description"] != "Subscriptionpause event at 2026-03-14T09:30:00Z" {
		t.Fatalf("unexpected description %v", attrs["description"])
	}
}

func TestNotifier_Notify(t *testing.T) {
	lookup := &stubEmailLookup{emailID: "email-record-7"}
	updater := &stubEmailUpdater{}
	notifier := NewNotifierWith(lookup, updater)

	err := notifier.Notify(context.Background(), notificationAt(core.KindDelivery, map[string]any{
		"Recipient": "jane@example.com",
	}))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if lookup.lastID != "pm-1" {
		t.Fatalf("lookup used wrong provider message id %q", lookup.lastID)
	}
	if updater.lastID != "email-record-7" {
		t.Fatalf("update targeted wrong record %q", updater.lastID)
	}
	if updater.lastAttrs["status"] != "delivered" {
		t.Fatalf("attributes not forwarded: %v", updater.lastAttrs)
	}
}

func TestNotifier_Notify_LookupMiss(t *testing.T) {
	lookup := &stubEmailLookup{err: core.ErrLookupUnresolved}
	updater := &stubEmailUpdater{}
	notifier := NewNotifierWith(lookup, updater)

	err := notifier.Notify(context.Background(), notificationAt(core.KindOpen, nil))
	if !errors.Is(err, core.ErrLookupUnresolved) {
		t.Fatalf("expected lookup miss to propagate, got %v", err)
	}
	if updater.calls != 0 {
		t.Fatal("update must not run without a resolved record")
	}
}

func TestNotifier_Notify_RequiresProviderMessageID(t *testing.T) {
	notifier := NewNotifierWith(&stubEmailLookup{}, &stubEmailUpdater{})
	notification := notificationAt(core.KindOpen, nil)
	notification.ProviderMessageID = "  "
	if err := notifier.Notify(context.Background(), notification); err == nil {
		t.Fatal("expected error for blank provider message id")
	}
}

func TestNotifier_Notify_DisabledClient(t *testing.T) {
	notifier := NewNotifier(NewClient(core.CRMConfig{}, nil))
	err := notifier.Notify(context.Background(), notificationAt(core.KindDelivery, nil))
	if !errors.Is(err, core.ErrNotifierDisabled) {
		t.Fatalf("expected ErrNotifierDisabled, got %v", err)
	}
}
