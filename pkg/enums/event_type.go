package enums

import "fmt"

// QueueEventType identifies the handler responsible for a queued event.
type QueueEventType string

const (
	EventStockThenOrder QueueEventType = "stock_then_order"
	EventStockUpdate    QueueEventType = "stock_update"
	EventProductUpdate  QueueEventType = "product_update"
)

var validQueueEventTypes = []QueueEventType{
	EventStockThenOrder,
	EventStockUpdate,
	EventProductUpdate,
}

// IsValid reports whether the value matches a known event type.
func (e QueueEventType) IsValid() bool {
	for _, candidate := range validQueueEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseQueueEventType converts raw input into QueueEventType.
func ParseQueueEventType(value string) (QueueEventType, error) {
	for _, candidate := range validQueueEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue event type %q", value)
}
