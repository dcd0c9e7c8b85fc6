package annotate

import "context"

// Chunk is one fragment of streamed generator output. Chunk boundaries
// are arbitrary: a chunk may split a record, a line, even a character.
type Chunk struct {
	// Text is the incremental text content. May be empty on the final chunk.
	Text string

	// FinishReason is set on the final chunk; "error" signals a stream
	// failure after the channel was opened.
	FinishReason string
}

// Generator is the abstraction over the external text-generation service.
//
// Implementations must close the returned channel when generation ends or
// ctx is cancelled, and must surface post-open errors as a Chunk with
// FinishReason "error". The initial error return is non-nil only when the
// stream could not be started at all.
type Generator interface {
	StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (<-chan Chunk, error)
}
