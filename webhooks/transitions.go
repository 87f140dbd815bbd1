package webhooks

import (
	"github.com/goliatone/go-mailhooks/core"
)

// Journal entry tags. These diverge from the wire record types where the
// original integration did (spam_complaint, subscription_change, deferred).
const (
	entryDelivery           = "delivery"
	entryOpen               = "open"
	entryClick              = "click"
	entryBounce             = "bounce"
	entrySpamComplaint      = "spam_complaint"
	entrySubscriptionChange = "subscription_change"
	entryDeferred           = "deferred"
	entryUnknown            = "unknown"
)

// Delivery status labels written to the summary field.
const (
	StatusDelivered  = "delivered"
	StatusOpened     = "opened"
	StatusClicked    = "clicked"
	StatusBounced    = "bounced"
	StatusComplained = "complained"
	StatusSuppressed = "suppressed"
	StatusSubscribed = "subscription_changed"
	StatusDeferred   = "deferred"
)

type transition func(event core.InboundEvent) core.StateUpdate

var transitionTable = map[core.EventKind]transition{
	core.KindDelivery:           deliveryTransition,
	core.KindOpen:               openTransition,
	core.KindClick:              clickTransition,
	core.KindBounce:             bounceTransition,
	core.KindSpamComplaint:      spamComplaintTransition,
	core.KindSubscriptionChange: subscriptionChangeTransition,
	core.KindTransient:          transientTransition,
}

// BuildStateUpdate resolves the per-kind transition and computes the
// complete effect of the event: field writes, counter advances, and the
// journal entry. Unrecognized kinds fall through to the unknown
// transition, which only relabels the status and journals the raw
// payload.
func BuildStateUpdate(event core.InboundEvent) core.StateUpdate {
	if apply, ok := transitionTable[event.Kind]; ok {
		return apply(event)
	}
	return unknownTransition(event)
}

func deliveryTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entryDelivery,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldDelivered:      true,
			core.FieldDeliveredAt:    event.OccurredAt,
			core.FieldDeliveryStatus: StatusDelivered,
		},
		Journal: map[string]any{
			"MessageID":   rawField(event, "MessageID"),
			"Recipient":   rawField(event, "Recipient", "Email"),
			"DeliveredAt": rawField(event, "DeliveredAt"),
			"Tag":         rawField(event, "Tag"),
			"Metadata":    rawField(event, "Metadata"),
		},
	}
}

func openTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entryOpen,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldOpened:         true,
			core.FieldLastOpenedAt:   event.OccurredAt,
			core.FieldDeliveryStatus: StatusOpened,
		},
		Increments: []string{core.CounterOpened},
		Journal: map[string]any{
			"MessageID":  rawField(event, "MessageID"),
			"Recipient":  rawField(event, "Recipient", "Email"),
			"ReceivedAt": rawField(event, "ReceivedAt", "OpenedAt"),
			"FirstOpen":  rawField(event, "FirstOpen"),
			"Platform":   rawField(event, "Platform"),
			"UserAgent":  rawField(event, "UserAgent"),
			"OS":         rawField(event, "OS", "OperatingSystem"),
			"Client":     rawField(event, "Client"),
			"Geo":        geoField(event),
			"Metadata":   rawField(event, "Metadata"),
		},
	}
}

func clickTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entryClick,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldClicked:        true,
			core.FieldLastClickedAt:  event.OccurredAt,
			core.FieldDeliveryStatus: StatusClicked,
		},
		Increments: []string{core.CounterClicked},
		Journal: map[string]any{
			"MessageID":     rawField(event, "MessageID"),
			"Recipient":     rawField(event, "Recipient", "Email"),
			"ReceivedAt":    rawField(event, "ReceivedAt", "ClickedAt"),
			"ClickLocation": rawField(event, "ClickLocation"),
			"OriginalLink":  rawField(event, "OriginalLink", "OriginalLinkUrl"),
			"Platform":      rawField(event, "Platform"),
			"UserAgent":     rawField(event, "UserAgent"),
			"OS":            rawField(event, "OS", "OperatingSystem"),
			"Client":        rawField(event, "Client"),
			"Geo":           geoField(event),
			"Metadata":      rawField(event, "Metadata"),
		},
	}
}

func bounceTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entryBounce,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldBounced:        true,
			core.FieldBouncedAt:      event.OccurredAt,
			core.FieldBounceType:     stringField(event.Raw, "Type"),
			core.FieldBounceDetail:   stringField(event.Raw, "Description"),
			core.FieldDeliveryStatus: StatusBounced,
		},
		Journal: map[string]any{
			"MessageID":   rawField(event, "MessageID"),
			"Recipient":   rawField(event, "Recipient", "Email"),
			"BouncedAt":   rawField(event, "BouncedAt"),
			"Type":        rawField(event, "Type"),
			"Description": rawField(event, "Description"),
			"Content":     rawField(event, "Content", "Details"),
			"Metadata":    rawField(event, "Metadata"),
		},
	}
}

func spamComplaintTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entrySpamComplaint,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldSpamComplaint:   true,
			core.FieldSpamComplaintAt: event.OccurredAt,
			core.FieldDeliveryStatus:  StatusComplained,
		},
		Journal: map[string]any{
			"MessageID":   rawField(event, "MessageID"),
			"Recipient":   rawField(event, "Recipient", "Email"),
			"BouncedAt":   rawField(event, "BouncedAt"),
			"Description": rawField(event, "Description"),
			"Content":     rawField(event, "Content", "Details"),
			"Metadata":    rawField(event, "Metadata"),
		},
	}
}

func subscriptionChangeTransition(event core.InboundEvent) core.StateUpdate {
	suppress, _ := event.Raw["SuppressSending"].(bool)
	status := StatusSubscribed
	if suppress {
		status = StatusSuppressed
	} else if reason := stringField(event.Raw, "SuppressionReason"); reason != "" {
		status = reason
	}
	return core.StateUpdate{
		EventType:  entrySubscriptionChange,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldSubscriptionChanged:   true,
			core.FieldSubscriptionChangedAt: event.OccurredAt,
			core.FieldDeliveryStatus:        status,
		},
		Journal: map[string]any{
			"MessageID":         rawField(event, "MessageID"),
			"Recipient":         rawField(event, "Recipient", "Email"),
			"ChangedAt":         rawField(event, "ChangedAt"),
			"Origin":            rawField(event, "Origin"),
			"SuppressSending":   suppress,
			"SuppressionReason": rawField(event, "SuppressionReason"),
			"Metadata":          rawField(event, "Metadata"),
		},
	}
}

func transientTransition(event core.InboundEvent) core.StateUpdate {
	return core.StateUpdate{
		EventType:  entryDeferred,
		OccurredAt: event.OccurredAt,
		Fields: map[string]any{
			core.FieldLastDeferredAt: event.OccurredAt,
			core.FieldDeliveryStatus: StatusDeferred,
		},
		Increments: []string{core.CounterDeferred},
		Journal: map[string]any{
			"MessageID":  rawField(event, "MessageID"),
			"Recipient":  rawField(event, "Recipient", "Email"),
			"ReceivedAt": rawField(event, "ReceivedAt"),
			"Metadata":   rawField(event, "Metadata"),
		},
	}
}

// unknownTransition keeps typed fields untouched. A non-empty raw type
// still relabels the summary status so operators can see that something
// unrecognized arrived; the journal keeps the whole payload since there
// is no known shape to extract from.
func unknownTransition(event core.InboundEvent) core.StateUpdate {
	update := core.StateUpdate{
		EventType:  entryUnknown,
		OccurredAt: event.OccurredAt,
		Fields:     map[string]any{},
		Journal: map[string]any{
			"raw": event.Raw,
		},
	}
	if event.RawType != "" {
		update.Fields[core.FieldDeliveryStatus] = event.RawType
	}
	return update
}

// rawField returns the first present, non-nil payload value among keys.
func rawField(event core.InboundEvent, keys ...string) any {
	for _, key := range keys {
		if value, present := event.Raw[key]; present && value != nil {
			return value
		}
	}
	return nil
}

// geoField prefers a provider-supplied Geo block and otherwise assembles
// one from the flat location fields.
func geoField(event core.InboundEvent) any {
	if value, present := event.Raw["Geo"]; present && value != nil {
		return value
	}
	return map[string]any{
		"City":    rawField(event, "City"),
		"Region":  rawField(event, "Region"),
		"Country": rawField(event, "Country"),
		"IP":      rawField(event, "IPAddress"),
	}
}
