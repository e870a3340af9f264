package audio

import (
	"fmt"
	"time"
)

// Frame is one fixed-size block of single-channel microphone samples in the
// range [-1, 1], as delivered by a capture callback. Frames are transient: the
// slice handed to a callback is only valid for the duration of that callback.
type Frame []float32

// EncodedBlob is the unit of audio sent to a remote live session: base64 text
// plus the MIME type describing the raw payload. Treat it as immutable once
// constructed.
type EncodedBlob struct {
	// Data is the base64-encoded payload.
	Data string

	// MIMEType describes the decoded payload, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// PCMMIMEType returns the MIME type for raw 16-bit little-endian PCM at the
// given sample rate.
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// Buffer is a planar multi-channel block of floating-point samples, ready to
// be scheduled on an output device.
type Buffer struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels holds one sample slice per channel. All slices have the same
	// length.
	Channels [][]float32
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
