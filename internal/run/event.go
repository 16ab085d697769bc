package run

type EventKind string

const (
	EventStatus       EventKind = "status"
	EventResult       EventKind = "result"
	EventSummary      EventKind = "summary"
	EventEnableExport EventKind = "enable_export"
	EventError        EventKind = "error"
	EventDone         EventKind = "done"
)

// Event is one item of a run's ordered output stream.
type Event struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

func Status(text string) Event { return Event{Kind: EventStatus, Text: text} }
func Error(text string) Event  { return Event{Kind: EventError, Text: text} }
func Done() Event              { return Event{Kind: EventDone} }
