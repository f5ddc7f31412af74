package enums

import "fmt"

// QueueDLQErrorReason explains why an event was dead-lettered.
type QueueDLQErrorReason string

const (
	DLQReasonMaxAttempts  QueueDLQErrorReason = "max_attempts"
	DLQReasonNonRetryable QueueDLQErrorReason = "non_retryable"
)

var validQueueDLQErrorReasons = []QueueDLQErrorReason{
	DLQReasonMaxAttempts,
	DLQReasonNonRetryable,
}

// IsValid reports whether the value matches a known reason.
func (r QueueDLQErrorReason) IsValid() bool {
	for _, candidate := range validQueueDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseQueueDLQErrorReason converts raw input into QueueDLQErrorReason.
func ParseQueueDLQErrorReason(value string) (QueueDLQErrorReason, error) {
	for _, candidate := range validQueueDLQErrorReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dlq error reason %q", value)
}
