package hrchat

// Event is a sealed interface representing one decoded server-sent event.
// Every raw chunk decodes to exactly one Event. Decoding failures come from
// the decoder's error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventMetadata carries the persisted user message the server echoes back
// once it has accepted a request.
type EventMetadata struct {
	Message ChatMessage
}

func (EventMetadata) event() {}

// EventDelta represents one fragment of the assistant's in-progress reply.
type EventDelta struct {
	Text string
}

func (EventDelta) event() {}

// EventTitleGeneration carries a generated human-readable session title.
type EventTitleGeneration struct {
	Title string
}

func (EventTitleGeneration) event() {}

// EventStreamComplete is the terminal record for a completed assistant
// message. Message.Message is always empty: the text is reconstructed from
// the accumulated deltas.
type EventStreamComplete struct {
	Message ChatMessage
}

func (EventStreamComplete) event() {}

// EventError is produced for a server-reported error and for any event name
// the decoder does not recognize. Event holds the raw event name, empty when
// the chunk had no event line.
type EventError struct {
	Event   string
	Message string
}

func (EventError) event() {}

// Interface compliance checks.
var (
	_ Event = EventMetadata{}
	_ Event = EventDelta{}
	_ Event = EventTitleGeneration{}
	_ Event = EventStreamComplete{}
	_ Event = EventError{}
)
