package domain

// StreamEventType identifies a streaming lifecycle event.
type StreamEventType string

const (
	// StreamStarted is always the first event and carries the resolved
	// provider and literal model id.
	StreamStarted StreamEventType = "started"
	// StreamChunk carries one incremental text fragment.
	StreamChunk StreamEventType = "chunk"
	// StreamCompleted terminates a successful stream with the accumulated text.
	StreamCompleted StreamEventType = "completed"
	// StreamFailed terminates a broken stream. No Completed follows a Failed.
	StreamFailed StreamEventType = "failed"
)

// StreamEvent is one element of the uniform chunk sequence surfaced to
// streaming callers, regardless of whether the provider streams natively.
// Sequences always obey: one Started, zero or more Chunks, then exactly one
// of Completed or Failed.
type StreamEvent struct {
	Type StreamEventType

	// Started
	Provider string
	// Started, Completed
	Model string

	// Chunk
	Text string

	// Completed
	FinalText string

	// Failed
	Err error
}
