package binder

// EventType tags a lifecycle or progress notification.
type EventType string

// Event types delivered to job subscribers.
const (
	EventStatus       EventType = "status"
	EventProgress     EventType = "progress"
	EventWarning      EventType = "warning"
	EventPostComplete EventType = "post_complete"
	EventError        EventType = "error"
	EventDone         EventType = "done"
	EventPing         EventType = "ping"
)

// Event is a single typed notification. It is immutable once published; each
// subscriber receives its own copy.
type Event struct {
	Type EventType      `json:"event"`
	Data map[string]any `json:"data"`
}
