package sqlstore

import (
	"github.com/goliatone/go-mailhooks/core"
	"github.com/goliatone/go-mailhooks/webhooks"
)

var (
	_ core.MessageStore       = (*MessageStore)(nil)
	_ core.EventJournal       = (*MessageEventStore)(nil)
	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
)
