// Package crm mirrors delivery-event outcomes onto SuiteCRM email
// records over its V8 JSON:API surface.
//
// The integration is strictly best-effort: every entry point is safe to
// call from the webhook path, and callers are expected to log and drop
// the returned error. Records are correlated by the provider message id
// stored in the email record's message_id attribute.
package crm
