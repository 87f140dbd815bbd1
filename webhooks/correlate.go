package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

// Resolver matches a normalized event to the sent-message record it
// concerns. A present message id is authoritative: when it does not
// match, correlation fails without consulting the recipient fallback.
type Resolver struct {
	Store   core.MessageStore
	Channel string
	Window  time.Duration
	Now     func() time.Time
}

func NewResolver(store core.MessageStore, channel string, window time.Duration) *Resolver {
	if strings.TrimSpace(channel) == "" {
		channel = core.ChannelPostmark
	}
	if window <= 0 {
		window = core.DefaultCorrelationWindowDays * 24 * time.Hour
	}
	return &Resolver{
		Store:   store,
		Channel: channel,
		Window:  window,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Resolve returns the matched record or core.ErrMessageNotFound. The
// recipient fallback favors the most recently triggered record inside
// the trailing window; this is a recency heuristic for events that omit
// the message id and can misattribute when one address receives several
// messages in the window.
func (r *Resolver) Resolve(ctx context.Context, event core.InboundEvent) (core.SentMessage, error) {
	if r == nil || r.Store == nil {
		return core.SentMessage{}, fmt.Errorf("webhooks: resolver requires a message store")
	}

	if messageID := strings.TrimSpace(event.MessageID); messageID != "" {
		return r.Store.GetByProviderMessageID(ctx, messageID)
	}

	recipient := strings.TrimSpace(event.Recipient)
	if recipient == "" {
		return core.SentMessage{}, core.ErrNoCorrelationKeys
	}

	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}
	return r.Store.FindLatestByRecipient(ctx, r.Channel, recipient, now.Add(-r.Window))
}
