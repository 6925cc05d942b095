// Package notifications publishes batch milestones to ntfy.
//
// NewService returns a no-op notifier when no topic is configured, so the
// batch runner can call it unconditionally. Delivery failures are returned to
// the caller, which logs and otherwise ignores them.
package notifications
