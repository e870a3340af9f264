// Package audio defines the sample types, codec helpers and device interfaces
// shared by the live voice pipeline.
//
// The device abstractions mirror a clock-driven audio graph:
//
//   - [Devices] acquires the microphone and opens device contexts at fixed
//     sample rates.
//   - [InputContext] produces fixed-size capture frames through a
//     [CaptureNode] whose callback fires on the platform's audio thread.
//   - [OutputContext] exposes a monotonically increasing clock and plays
//     [Buffer] values at absolute times on that clock, returning a [Source]
//     handle that can be stopped early.
//
// Implementations live in adapter packages (audio/local for PortAudio,
// audio/mock for tests). The interfaces are deliberately narrow so the session
// controller never depends on a particular audio backend.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned (wrapped) by [Devices] when the operating
// system or user refuses access to the microphone or speaker.
var ErrPermissionDenied = errors.New("audio: device access denied")

// ErrClosed is returned when operating on a context that has been closed.
var ErrClosed = errors.New("audio: context closed")

// Source is a handle to one buffer scheduled on an [OutputContext].
type Source interface {
	// Stop halts playback immediately. Stopping a source that already finished
	// or was already stopped is a no-op. The onEnded callback passed to
	// [OutputContext.Schedule] is not invoked for stopped sources.
	Stop()
}

// OutputContext plays buffers against its own sample clock.
//
// Implementations must be safe for concurrent use.
type OutputContext interface {
	// Now returns the current playback position of the device clock. The value
	// never decreases.
	Now() time.Duration

	// Schedule queues buf to start playing at the absolute clock time at. A time
	// in the past starts playback immediately. onEnded, if non-nil, is called
	// once when the buffer has been played to completion; it may be called from
	// the audio thread and must not block.
	Schedule(buf *Buffer, at time.Duration, onEnded func()) (Source, error)

	// SampleRate returns the rate the context was opened at.
	SampleRate() int

	// Close stops all sources and releases the output device. Subsequent calls
	// return nil.
	Close() error
}

// CaptureNode is the frame processor attached to an [InputContext]. Between
// Start and Stop it invokes its frame callback once per captured frame.
type CaptureNode interface {
	// Start connects the node and begins delivering frames.
	Start() error

	// Stop disconnects the node. No callbacks are delivered after Stop returns.
	// Calling Stop more than once is safe.
	Stop() error
}

// InputContext is an open microphone stream at a fixed sample rate.
//
// Implementations must be safe for concurrent use.
type InputContext interface {
	// OpenCapture builds a capture node that delivers frames of exactly
	// frameSize mono samples to onFrame. onFrame runs on the audio thread and
	// must return quickly; the frame slice is reused after it returns.
	OpenCapture(frameSize int, onFrame func(Frame)) (CaptureNode, error)

	// SampleRate returns the rate the context was opened at.
	SampleRate() int

	// Close releases the microphone. Subsequent calls return nil.
	Close() error
}

// Devices opens device contexts. The supplied ctx bounds only the open
// attempt itself.
type Devices interface {
	// OpenInput acquires the microphone and opens an input context at
	// sampleRate. Returns an error wrapping [ErrPermissionDenied] when access
	// is refused.
	OpenInput(ctx context.Context, sampleRate int) (InputContext, error)

	// OpenOutput opens an output context at sampleRate.
	OpenOutput(ctx context.Context, sampleRate int) (OutputContext, error)
}
