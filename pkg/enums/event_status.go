package enums

import "fmt"

// QueueEventStatus tracks the lifecycle of a queued cross-system action.
type QueueEventStatus string

const (
	EventStatusPending QueueEventStatus = "pending"
	EventStatusDone    QueueEventStatus = "done"
	EventStatusFailed  QueueEventStatus = "failed"
)

var validQueueEventStatuses = []QueueEventStatus{
	EventStatusPending,
	EventStatusDone,
	EventStatusFailed,
}

// IsTerminal reports whether the status can no longer change.
func (s QueueEventStatus) IsTerminal() bool {
	return s == EventStatusDone || s == EventStatusFailed
}

// IsValid reports whether the value matches a known status.
func (s QueueEventStatus) IsValid() bool {
	for _, candidate := range validQueueEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseQueueEventStatus converts raw input into QueueEventStatus.
func ParseQueueEventStatus(value string) (QueueEventStatus, error) {
	for _, candidate := range validQueueEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue event status %q", value)
}
