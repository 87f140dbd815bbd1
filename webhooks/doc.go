// Package webhooks ingests provider delivery-event notifications.
//
// Processing is per-event: a payload fans out into normalized events,
// each event is correlated to a sent-message record and applied as an
// atomic state update plus one append-only journal entry. The endpoint
// acknowledges with 200 once every element has been attempted, because
// the provider retries on anything else and a retry storm is worse than
// a dropped event.
package webhooks
