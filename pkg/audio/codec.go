package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedData is returned (wrapped) when encoded or raw audio cannot be
// decoded: invalid base64, or a PCM byte count that does not divide evenly
// into 16-bit samples across the requested channels.
var ErrMalformedData = errors.New("audio: malformed data")

// pcm16Scale maps between float samples and signed 16-bit integers.
const pcm16Scale = 32768

// Encode returns the standard base64 encoding of b.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode is the inverse of [Encode]. Invalid input yields an error wrapping
// [ErrMalformedData].
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedData, err)
	}
	return b, nil
}

// PCM16FloatToBytes converts float samples in [-1, 1] to 16-bit signed
// little-endian PCM. Each sample is multiplied by 32768 and truncated toward
// zero. Input outside [-1, 1] is clamped first, +1.0 maps to 32767 and NaN
// encodes as silence.
func PCM16FloatToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		switch {
		case math.IsNaN(float64(s)):
			s = 0
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		v := min(int32(s*pcm16Scale), 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// BytesToPCM16Float reinterprets b as interleaved 16-bit signed little-endian
// samples, de-interleaves them into channelCount planes and rescales each
// sample by 1/32768.
//
// A byte length that is not a multiple of 2*channelCount is rejected with
// [ErrMalformedData] rather than silently truncated.
func BytesToPCM16Float(b []byte, sampleRate, channelCount int) (*Buffer, error) {
	if channelCount < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedData, channelCount)
	}
	if len(b)%(2*channelCount) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel pcm16 frames",
			ErrMalformedData, len(b), channelCount)
	}

	frameCount := len(b) / 2 / channelCount
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channelCount),
	}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frameCount)
	}
	for i := range frameCount {
		for ch := range channelCount {
			off := (i*channelCount + ch) * 2
			s := int16(binary.LittleEndian.Uint16(b[off:]))
			buf.Channels[ch][i] = float32(s) / pcm16Scale
		}
	}
	return buf, nil
}

// NewPCMBlob converts a mono frame to PCM16 and wraps it as an [EncodedBlob]
// tagged with the given sample rate.
func NewPCMBlob(samples []float32, sampleRate int) EncodedBlob {
	return EncodedBlob{
		Data:     Encode(PCM16FloatToBytes(samples)),
		MIMEType: PCMMIMEType(sampleRate),
	}
}
