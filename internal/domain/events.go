// Package domain defines the core domain models for the guardchat gateway.
package domain

// GenerationEventType represents the type of a generation stream event.
type GenerationEventType string

const (
	GenerationStarted       GenerationEventType = "started"
	GenerationChunk         GenerationEventType = "chunk"
	GenerationActionStarted GenerationEventType = "action_started"
	GenerationActionDone    GenerationEventType = "action_done"
	GenerationEnded         GenerationEventType = "ended"
	GenerationCompleted     GenerationEventType = "completed"
)

// GenerationEvent is a single event produced by the workflow stream, in
// strict arrival order. Exactly one Completed event terminates a stream;
// the producer closes the channel after it.
type GenerationEvent struct {
	Type GenerationEventType

	// Chunk fields
	Content  string
	ByteSize int

	// Action fields
	ActionID string
	Status   string

	// Completed fields
	FullText string
	// ItemIDs are the distinct conversation item IDs observed during the
	// stream, first-seen order, duplicates removed.
	ItemIDs []string
}

// OutputEventType represents the type of an event released to the caller.
type OutputEventType string

const (
	OutputMessageStart   OutputEventType = "message_start"
	OutputMessageContent OutputEventType = "message_content"
	OutputMessageEnd     OutputEventType = "message_end"
	OutputDone           OutputEventType = "done"
)

// OutputEvent is the gateway-facing event shape. The Done event carries the
// concatenated full text and the moderation verdict; it is always last.
type OutputEvent struct {
	Type     OutputEventType
	Content  string
	FullText string
	Verdict  *Verdict
}
