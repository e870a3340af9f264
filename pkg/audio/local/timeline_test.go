package local

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

func monoBuffer(rate int, samples ...float32) *audio.Buffer {
	return &audio.Buffer{SampleRate: rate, Channels: [][]float32{samples}}
}

func TestTimeline_ClockAdvancesWithRender(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	if tl.Now() != 0 {
		t.Fatalf("Now = %v, want 0", tl.Now())
	}
	tl.Render(make([]float32, 250))
	if got := tl.Now(); got != 250*time.Millisecond {
		t.Errorf("Now = %v, want 250ms", got)
	}
}

func TestTimeline_PlaysBackToBackWithoutGap(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)

	var ended atomic.Int32
	onEnded := func() { ended.Add(1) }
	if _, err := tl.Schedule(monoBuffer(1000, 0.1, 0.2), 0, onEnded); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Schedule(monoBuffer(1000, 0.3, 0.4), 2*time.Millisecond, onEnded); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 6)
	tl.Render(out)
	want := []float32{0.1, 0.2, 0.3, 0.4, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	if ended.Load() != 2 {
		t.Errorf("ended = %d, want 2", ended.Load())
	}
}

func TestTimeline_OddLengthSegmentsStayGapless(t *testing.T) {
	t.Parallel()
	const (
		rate   = 24000
		frames = 1001 // not a whole number of nanoseconds per segment
		period = 480
	)
	tl := NewTimeline(rate)
	segment := func() *audio.Buffer {
		s := make([]float32, frames)
		for i := range s {
			s[i] = 0.25
		}
		return monoBuffer(rate, s...)
	}

	var out []float32
	render := func(n int) {
		buf := make([]float32, n)
		tl.Render(buf)
		out = append(out, buf...)
	}

	// Schedule the way the live playback does: each segment starts where the
	// previous one ends, or now if the schedule fell behind.
	var next time.Duration
	for i := range 3 {
		buf := segment()
		at := max(next, tl.Now())
		if _, err := tl.Schedule(buf, at, nil); err != nil {
			t.Fatal(err)
		}
		next = at + buf.Duration()
		if i == 0 {
			render(period)
		}
	}
	for len(out) < 3*frames+period {
		render(period)
	}

	for i := range 3 * frames {
		if out[i] != 0.25 {
			t.Fatalf("sample %d = %v, want 0.25 (overlap or gap at a segment boundary)", i, out[i])
		}
	}
	for i := 3 * frames; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d = %v after the last segment, want silence", i, out[i])
		}
	}
}

func TestTimeline_StartsMidWindow(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	if _, err := tl.Schedule(monoBuffer(1000, 0.5, 0.5, 0.5), 3*time.Millisecond, nil); err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 4)
	tl.Render(out)
	if out[2] != 0 || out[3] != 0.5 {
		t.Errorf("first window = %v, want silence then one sample at index 3", out)
	}
	tl.Render(out)
	if out[0] != 0.5 || out[1] != 0.5 || out[2] != 0 {
		t.Errorf("second window = %v, want remaining two samples", out)
	}
}

func TestTimeline_PastStartPlaysImmediately(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	tl.Render(make([]float32, 10))

	if _, err := tl.Schedule(monoBuffer(1000, 0.25), 0, nil); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 2)
	tl.Render(out)
	if out[0] != 0.25 {
		t.Errorf("out[0] = %v, want 0.25", out[0])
	}
}

func TestTimeline_StopSuppressesOutputAndCallback(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)

	var ended atomic.Bool
	src, err := tl.Schedule(monoBuffer(1000, 0.5, 0.5, 0.5, 0.5), 0, func() { ended.Store(true) })
	if err != nil {
		t.Fatal(err)
	}

	out := make([]float32, 2)
	tl.Render(out)
	src.Stop()
	tl.Render(out)
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("stopped source still audible: %v", out)
	}
	tl.Render(out)
	if ended.Load() {
		t.Error("onEnded fired for a stopped source")
	}
}

func TestTimeline_MixesOverlapAndClamps(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	_, _ = tl.Schedule(monoBuffer(1000, 0.75, 0.25), 0, nil)
	_, _ = tl.Schedule(monoBuffer(1000, 0.75, 0.25), 0, nil)

	out := make([]float32, 2)
	tl.Render(out)
	if out[0] != 1 {
		t.Errorf("out[0] = %v, want clamp to 1", out[0])
	}
	if out[1] != 0.5 {
		t.Errorf("out[1] = %v, want 0.5", out[1])
	}
}

func TestTimeline_StereoIsMixedDown(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	buf := &audio.Buffer{SampleRate: 1000, Channels: [][]float32{{0.5}, {0.25}}}
	_, _ = tl.Schedule(buf, 0, nil)

	out := make([]float32, 1)
	tl.Render(out)
	if out[0] != 0.375 {
		t.Errorf("out[0] = %v, want 0.375", out[0])
	}
}

func TestTimeline_Close(t *testing.T) {
	t.Parallel()
	tl := NewTimeline(1000)
	_, _ = tl.Schedule(monoBuffer(1000, 0.5), 0, nil)
	tl.Close()

	out := []float32{9}
	tl.Render(out)
	if out[0] != 0 {
		t.Errorf("closed timeline rendered %v, want silence", out[0])
	}
	if _, err := tl.Schedule(monoBuffer(1000, 0.5), 0, nil); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Schedule after Close err = %v, want ErrClosed", err)
	}
}
