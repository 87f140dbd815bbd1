package main

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

type recordingNotifier struct {
	notifications chan core.CRMNotification
}

func (n *recordingNotifier) Notify(_ context.Context, notification core.CRMNotification) error {
	n.notifications <- notification
	return nil
}

func TestStartAsyncNotifierDeliversThroughWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	delegate := &recordingNotifier{notifications: make(chan core.CRMNotification, 1)}
	notifier := startAsyncNotifier(ctx, delegate)

	sent := core.CRMNotification{
		ProviderMessageID: "pm-1",
		Kind:              core.KindBounce,
		RawType:           "Bounce",
		OccurredAt:        time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if err := notifier.Notify(ctx, sent); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case got := <-delegate.notifications:
		if got.ProviderMessageID != "pm-1" || got.Kind != core.KindBounce {
			t.Fatalf("unexpected notification: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never delivered the queued notification")
	}
}
