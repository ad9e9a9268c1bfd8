package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column on outbox_events.
type OutboxAggregateType string

const (
	AggregateCapture OutboxAggregateType = "capture"
	AggregateBatch   OutboxAggregateType = "batch"
	AggregateControl OutboxAggregateType = "control"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCapture,
	AggregateBatch,
	AggregateControl,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column on outbox_events.
type OutboxEventType string

const (
	EventCaptureTransitioned OutboxEventType = "capture_transitioned"
	EventCaptureDeclined     OutboxEventType = "capture_declined"
	EventCaptureDeleted      OutboxEventType = "capture_deleted"
	EventCaptureRestored     OutboxEventType = "capture_restored"
	EventBatchPromoted       OutboxEventType = "batch_promoted"
	EventControlUpdated      OutboxEventType = "control_updated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCaptureTransitioned,
	EventCaptureDeclined,
	EventCaptureDeleted,
	EventCaptureRestored,
	EventBatchPromoted,
	EventControlUpdated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason is stored on outbox_dlq rows.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownEvent OutboxDLQErrorReason = "unknown_event"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnknownEvent:
		return true
	}
	return false
}
