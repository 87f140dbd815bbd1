package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mailhooks/core"
)

// Notifier mirrors delivery events onto the correlated CRM email record.
// It is a side channel: callers log and discard its errors, and nothing
// in the webhook path depends on it succeeding.
type Notifier struct {
	lookup  EmailLookup
	updater EmailUpdater
	enabled func() bool
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{
		lookup:  client,
		updater: client,
		enabled: client.Enabled,
	}
}

// NewNotifierWith wires a notifier from separate lookup and update
// implementations, typically to put a cache in front of the lookup.
func NewNotifierWith(lookup EmailLookup, updater EmailUpdater) *Notifier {
	return &Notifier{
		lookup:  lookup,
		updater: updater,
		enabled: func() bool { return true },
	}
}

func (n *Notifier) Notify(ctx context.Context, notification core.CRMNotification) error {
	if n == nil || n.lookup == nil || n.updater == nil {
		return fmt.Errorf("crm: notifier is not configured")
	}
	if n.enabled != nil && !n.enabled() {
		return core.ErrNotifierDisabled
	}
	providerMessageID := strings.TrimSpace(notification.ProviderMessageID)
	if providerMessageID == "" {
		return fmt.Errorf("crm: notification has no provider message id")
	}

	attributes := BuildEmailAttributes(notification)
	if len(attributes) == 0 {
		return nil
	}

	emailID, err := n.lookup.LookupEmailID(ctx, providerMessageID)
	if err != nil {
		return err
	}
	return n.updater.UpdateEmail(ctx, emailID, attributes)
}

// BuildEmailAttributes renders the status and description the CRM email
// record should carry after the given event. Unrecognized kinds still get
// a description so the record reflects that something happened.
func BuildEmailAttributes(notification core.CRMNotification) map[string]any {
	timestamp := notification.OccurredAt.UTC().Format(time.RFC3339)
	event := notification.Event

	attributes := map[string]any{}
	description := ""

	switch notification.Kind {
	case core.KindDelivery:
		attributes["status"] = "delivered"
		recipient := eventString(event, "Recipient")
		if recipient == "" {
			recipient = eventString(event, "Email")
		}
		if recipient == "" {
			recipient = "unknown"
		}
		description = fmt.Sprintf("Delivered at %s to %s", timestamp, recipient)
	case core.KindOpen:
		attributes["status"] = "opened"
		location := eventString(event, "City")
		if location == "" {
			if geo, ok := event["Geo"].(map[string]any); ok {
				location = eventString(geo, "City")
			}
		}
		if location == "" {
			location = "unknown location"
		}
		platform := eventStringDefault(event, "Platform", "unknown")
		client := eventStringDefault(event, "Client", "unknown")
		description = fmt.Sprintf("Opened at %s from %s (Platform: %s, Client: %s)", timestamp, location, platform, client)
	case core.KindClick:
		attributes["status"] = "clicked"
		link := eventString(event, "OriginalLink")
		if link == "" {
			link = eventString(event, "OriginalLinkUrl")
		}
		if link == "" {
			link = "unknown"
		}
		description = fmt.Sprintf("Clicked at %s. Link: %s", timestamp, link)
	case core.KindBounce:
		attributes["status"] = "bounced"
		bounceType := eventStringDefault(event, "Type", "unknown")
		reason := eventStringDefault(event, "Description", "unknown")
		description = fmt.Sprintf("Bounced at %s. Type: %s, Reason: %s", timestamp, bounceType, reason)
	case core.KindSpamComplaint:
		attributes["status"] = "spam_complaint"
		description = strings.TrimSpace(fmt.Sprintf("Spam complaint at %s. %s", timestamp, eventString(event, "Description")))
	default:
		label := notification.RawType
		if label == "" {
			label = string(notification.Kind)
		}
		description = fmt.Sprintf("%s event at %s", capitalize(label), timestamp)
	}

	if description != "" {
		attributes["description"] = description
	}
	return attributes
}

func eventString(event map[string]any, key string) string {
	if event == nil {
		return ""
	}
	if text, ok := event[key].(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}

func eventStringDefault(event map[string]any, key string, fallback string) string {
	if value := eventString(event, key); value != "" {
		return value
	}
	return fallback
}

func capitalize(text string) string {
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}

var _ core.CRMNotifier = (*Notifier)(nil)
