package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(1, 2))

	cases := [][]byte{nil, {}, {0}, {0xff, 0x00, 0x7f}}
	for range 50 {
		b := make([]byte, rng.IntN(300))
		for i := range b {
			b[i] = byte(rng.UintN(256))
		}
		cases = append(cases, b)
	}

	for i, b := range cases {
		got, err := audio.Decode(audio.Encode(b))
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if !bytes.Equal(got, b) {
			t.Errorf("case %d: round trip mismatch: got %v, want %v", i, got, b)
		}
	}
}

func TestEncode_StandardAlphabet(t *testing.T) {
	t.Parallel()
	if got, want := audio.Encode([]byte("hi?")), "aGk/"; got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"!!!", "abc", "a===", "aGk_"} {
		_, err := audio.Decode(in)
		if !errors.Is(err, audio.ErrMalformedData) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformedData", in, err)
		}
	}
}

func TestPCM16FloatToBytes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"minus one", -1, -32768},
		{"plus one clamps", 1, 32767},
		{"truncates toward zero", 0.99999, 32767},
		{"small negative truncates", -0.00002, 0},
		{"out of range clamps", 2, 32767},
		{"far out of range clamps", 1e6, 32767},
		{"far negative clamps", -1e6, -32768},
		{"positive infinity clamps", float32(math.Inf(1)), 32767},
		{"negative infinity clamps", float32(math.Inf(-1)), -32768},
		{"NaN is silence", float32(math.NaN()), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b := audio.PCM16FloatToBytes([]float32{tc.in})
			if len(b) != 2 {
				t.Fatalf("len = %d, want 2", len(b))
			}
			if got := int16(binary.LittleEndian.Uint16(b)); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPCMRoundTrip_WithinQuantization(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 9))
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}
	samples[0], samples[1] = -1, 1

	buf, err := audio.BytesToPCM16Float(audio.PCM16FloatToBytes(samples), 16000, 1)
	if err != nil {
		t.Fatalf("BytesToPCM16Float: %v", err)
	}
	if buf.Frames() != len(samples) {
		t.Fatalf("frames = %d, want %d", buf.Frames(), len(samples))
	}
	for i, s := range samples {
		if diff := math.Abs(float64(buf.Channels[0][i] - s)); diff > 1.0/32768 {
			t.Fatalf("sample %d: |%v - %v| = %v exceeds 1/32768", i, buf.Channels[0][i], s, diff)
		}
	}
}

func TestBytesToPCM16Float_Deinterleaves(t *testing.T) {
	t.Parallel()
	raw := samplesToBytes([]int16{16384, -16384, 8192, -8192})
	buf, err := audio.BytesToPCM16Float(raw, 24000, 2)
	if err != nil {
		t.Fatalf("BytesToPCM16Float: %v", err)
	}
	if len(buf.Channels) != 2 || buf.Frames() != 2 {
		t.Fatalf("shape = %d ch x %d frames, want 2 x 2", len(buf.Channels), buf.Frames())
	}
	want := [][]float32{{0.5, 0.25}, {-0.5, -0.25}}
	for ch := range want {
		for i := range want[ch] {
			if buf.Channels[ch][i] != want[ch][i] {
				t.Errorf("ch %d sample %d = %v, want %v", ch, i, buf.Channels[ch][i], want[ch][i])
			}
		}
	}
	if buf.SampleRate != 24000 {
		t.Errorf("SampleRate = %d, want 24000", buf.SampleRate)
	}
}

func TestBytesToPCM16Float_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		n        int
		channels int
	}{
		{"odd byte count mono", 3, 1},
		{"not divisible by stereo frame", 6, 2},
		{"zero channels", 4, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.BytesToPCM16Float(make([]byte, tc.n), 24000, tc.channels)
			if !errors.Is(err, audio.ErrMalformedData) {
				t.Errorf("err = %v, want ErrMalformedData", err)
			}
		})
	}
}

func TestNewPCMBlob_FullFrame(t *testing.T) {
	t.Parallel()
	blob := audio.NewPCMBlob(make([]float32, 4096), 16000)
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q", blob.MIMEType)
	}
	raw, err := audio.Decode(blob.Data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(raw) != 8192 {
		t.Errorf("decoded length = %d, want 8192", len(raw))
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()
	buf := &audio.Buffer{SampleRate: 24000, Channels: [][]float32{make([]float32, 12000)}}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got)
	}
	var empty *audio.Buffer
	if empty.Duration() != 0 || empty.Frames() != 0 {
		t.Error("nil buffer should report zero length")
	}
}
