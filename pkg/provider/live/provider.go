// Package live defines the Provider interface for real-time voice session
// backends.
//
// A live provider wraps a hosted bidirectional streaming API: the client
// streams encoded microphone audio up, and the service streams synthesised
// audio segments, transcription fragments and interruption signals back in a
// single stateful session. The wire protocol belongs to the hosted service;
// implementations translate it into [Message] values.
//
// The central abstraction is [SessionHandle]. A handle returned by
// [Provider.Connect] is already open: the service has acknowledged the session
// setup and is ready to receive audio.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

// Role identifies who produced a transcription fragment.
type Role string

const (
	// RoleUser marks transcriptions of the local speaker.
	RoleUser Role = "user"

	// RoleModel marks transcriptions of the remote persona's speech.
	RoleModel Role = "model"
)

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Instructions is the persona system instruction.
	Instructions string

	// Voice selects a prebuilt voice by name (e.g. "Zephyr"). Empty uses the
	// service default.
	Voice string

	// InputSampleRate is the rate of the PCM audio the client will send.
	InputSampleRate int

	// InputTranscription asks the service to transcribe the user's speech.
	InputTranscription bool

	// OutputTranscription asks the service to transcribe its own speech.
	OutputTranscription bool
}

// Segment is one chunk of synthesised audio as delivered by the service. Data
// is left base64-encoded; decoding belongs to the playback pipeline so that a
// malformed segment can be dropped without tearing the session down.
type Segment struct {
	// Data is the base64-encoded PCM payload.
	Data string

	// MIMEType describes the payload, e.g. "audio/pcm;rate=24000".
	MIMEType string
}

// Message is one inbound event from the live session. A single message may
// carry several kinds of content at once; consumers must handle every field.
type Message struct {
	// Audio holds audio segments in arrival order.
	Audio []Segment

	// Text holds text parts of the model turn, if the service sent any.
	Text string

	// InputTranscription is a fragment of the user's transcribed speech.
	InputTranscription string

	// OutputTranscription is a fragment of the model's transcribed speech.
	OutputTranscription string

	// Interrupted signals barge-in: all queued output audio must be discarded.
	Interrupted bool

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// SessionHandle represents an open live session. It is an interface so that
// test code can supply mock implementations without a network connection.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// Send delivers one encoded audio blob to the service. The blob's MIME
	// type must match the rate declared in [SessionConfig.InputSampleRate].
	// Returns an error if the session is closed or the write fails.
	Send(ctx context.Context, blob audio.EncodedBlob) error

	// SendText sends a complete user text turn into the session.
	SendText(ctx context.Context, text string) error

	// Messages returns the channel of inbound messages. It is closed when the
	// session ends; check [SessionHandle.Err] afterwards to distinguish a clean
	// close from a transport failure.
	Messages() <-chan Message

	// Err returns the error that ended the session, or nil while the session is
	// open or after a clean Close.
	Err() error

	// Close terminates the session and closes the Messages channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live session backend.
type Provider interface {
	// Connect opens a session and blocks until the service acknowledges the
	// setup. ctx bounds only the connection attempt.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
