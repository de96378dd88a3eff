package compile

// EventType tags a streamed compilation event. The set is closed: new
// kinds of output get a new constant here, never an ad hoc string.
type EventType string

const (
	// EventLog carries one compiler log or diagnostic line.
	EventLog EventType = "log"
	// EventBlueprint carries the encoded blueprint exchange string.
	EventBlueprint EventType = "blueprint"
	// EventJSON carries the compiled artifact as JSON text.
	EventJSON EventType = "json"
	// EventError carries a terminal error message.
	EventError EventType = "error"
	// EventStatus carries a human-readable progress message.
	EventStatus EventType = "status"
	// EventQueue carries the caller's queue position (0 = compiling).
	EventQueue EventType = "queue"
	// EventEnd marks the end of the stream. Consumers terminate on it
	// rather than on connection close.
	EventEnd EventType = "end"
)

// Event is one record in the streamed compilation output.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// EmitFunc receives events in order. Returning an error stops the
// stream (the consumer has gone away).
type EmitFunc func(Event) error
