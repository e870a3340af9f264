// Package chat defines the Provider interface for streaming text chat
// backends.
//
// A chat provider sends one request carrying the full conversation so far and
// a system instruction, and streams the model's reply back as text fragments.
// Conversation state lives with the caller; providers are stateless between
// requests.
//
// Implementors must be safe for concurrent use. Channels returned by Stream
// must be closed by the implementation when the stream ends or when the
// supplied context is cancelled.
package chat

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks turns typed by the local user.
	RoleUser Role = "user"

	// RoleModel marks turns produced by the model.
	RoleModel Role = "model"
)

// Turn is one message in a conversation.
type Turn struct {
	Role Role
	Text string
}

// Request carries everything the model needs to produce the next reply.
type Request struct {
	// SystemInstruction is the persona instruction sent with every request.
	SystemInstruction string

	// Turns is the ordered conversation history. The last turn is the new user
	// message that drives the reply.
	Turns []Turn
}

// Chunk is a single fragment of a streamed reply.
type Chunk struct {
	// Text is the incremental reply text. May be empty on the error chunk.
	Text string

	// Err is set on the final chunk when the stream failed after it was opened.
	// No further chunks follow an error chunk.
	Err error
}

// Provider is the abstraction over any streaming chat backend.
type Provider interface {
	// Stream sends req and returns a channel that emits reply fragments in
	// receipt order. The channel is closed when generation finishes, fails, or
	// ctx is cancelled. The initial error is non-nil only for failures that
	// prevent the stream from starting.
	//
	// The returned channel must never be nil when error is nil.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
