package jobs

import "strings"

// Status represents the lifecycle state of a conversion job.
type Status string

const (
	StatusPending            Status = "pending"
	StatusProcessing         Status = "processing"
	StatusCompleted          Status = "completed"
	StatusCompletedNoPreview Status = "completed_no_preview"
	StatusFailed             Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusCompletedNoPreview,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	m := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		m[status] = struct{}{}
	}
	return m
}()

type statusTransition struct {
	from Status
	to   Status
}

var allowedTransitions = map[statusTransition]struct{}{
	{StatusPending, StatusProcessing}:            {},
	{StatusPending, StatusFailed}:                {},
	{StatusProcessing, StatusCompleted}:          {},
	{StatusProcessing, StatusCompletedNoPreview}: {},
	{StatusProcessing, StatusFailed}:             {},
}

// AllStatuses returns all known job statuses in lifecycle order.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedNoPreview, StatusFailed:
		return true
	default:
		return false
	}
}

// IsCompleted is true for both completed states.
func (s Status) IsCompleted() bool {
	return s == StatusCompleted || s == StatusCompletedNoPreview
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[statusTransition{from: from, to: to}]
	return ok
}
