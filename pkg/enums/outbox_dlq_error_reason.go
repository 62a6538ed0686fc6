package enums

// OutboxDLQErrorReason records why the publisher parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts     OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable    OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnknownEvent    OutboxDLQErrorReason = "unknown_event"
	OutboxDLQReasonInvalidEnvelope OutboxDLQErrorReason = "invalid_envelope"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable, OutboxDLQReasonUnknownEvent, OutboxDLQReasonInvalidEnvelope:
		return true
	}
	return false
}
