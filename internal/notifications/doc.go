// Package notifications pushes job outcome messages to an ntfy topic.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally.
package notifications
