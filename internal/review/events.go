package review

// Event kinds emitted while a discovery or review cycle runs. Transports
// (SSE today) serialize each event as a JSON object with a "type" field
// and the payload fields flattened alongside it.
const (
	EventStatus          = "status"
	EventInfo            = "info"
	EventPRsFound        = "prs_found"
	EventPRStatus        = "pr_status"
	EventCLIOutput       = "cli_output"
	EventReviewSaved     = "review_saved"
	EventReviewTriggered = "review_triggered"
	EventReviewError     = "review_error"
	EventDone            = "done"
	EventError           = "error"
)

// Event is one progress notification, transport-agnostic.
type Event struct {
	Type   string
	Fields map[string]any
}

// EventSink receives orchestration events. A nil sink is allowed.
type EventSink func(Event)

func (s EventSink) emit(eventType string, fields map[string]any) {
	if s == nil {
		return
	}
	s(Event{Type: eventType, Fields: fields})
}
