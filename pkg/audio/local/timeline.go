package local

import (
	"container/heap"
	"sync"
	"time"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

// source is one buffer scheduled on a [Timeline]. Samples are mixed down to
// mono at schedule time so the render loop only deals with a single plane.
type source struct {
	tl      *Timeline
	samples []float32
	start   int64 // absolute start position in samples
	off     int   // next sample to render
	seq     uint64
	onEnded func()
	stopped bool
}

// Stop implements [audio.Source].
func (s *source) Stop() {
	s.tl.mu.Lock()
	defer s.tl.mu.Unlock()
	s.stopped = true
}

// pendingHeap implements [container/heap.Interface] as a min-heap ordered by
// start position, with FIFO tie-breaking on seq.
type pendingHeap []*source

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push is called by [container/heap.Push]; do not invoke directly.
func (h *pendingHeap) Push(x any) { *h = append(*h, x.(*source)) }

// Pop is called by [container/heap.Pop]; do not invoke directly.
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return s
}

// Timeline is a sample-accurate playback clock. Buffers are scheduled at
// absolute positions and mixed into the output by [Timeline.Render], which a
// device callback calls once per hardware period. The clock only advances as
// samples are rendered, so it is monotonic by construction.
//
// Timeline is safe for concurrent use.
type Timeline struct {
	rate int

	mu      sync.Mutex
	pos     int64
	seq     uint64
	pending pendingHeap
	playing []*source
	closed  bool
}

// NewTimeline returns an empty timeline clocked at sampleRate.
func NewTimeline(sampleRate int) *Timeline {
	t := &Timeline{rate: sampleRate}
	heap.Init(&t.pending)
	return t
}

// SampleRate returns the clock rate in Hz.
func (t *Timeline) SampleRate() int { return t.rate }

// Now returns the position of the render cursor.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samplesToDuration(t.pos)
}

// Schedule queues buf to start at the absolute clock time at, or immediately
// if at has already passed.
func (t *Timeline) Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	samples := mixdown(buf)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, audio.ErrClosed
	}

	t.seq++
	s := &source{
		tl:      t,
		samples: samples,
		start:   max(t.durationToSamples(at), t.pos),
		seq:     t.seq,
		onEnded: onEnded,
	}
	heap.Push(&t.pending, s)
	return s, nil
}

// Render fills out with the mix of all sources active in the next len(out)
// samples and advances the clock. onEnded callbacks for sources that finish
// inside this window are invoked after the lock is released, on the calling
// goroutine.
func (t *Timeline) Render(out []float32) {
	clear(out)
	n := int64(len(out))

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	windowEnd := t.pos + n
	for t.pending.Len() > 0 && t.pending[0].start < windowEnd {
		t.playing = append(t.playing, heap.Pop(&t.pending).(*source))
	}

	var ended []func()
	kept := t.playing[:0]
	for _, s := range t.playing {
		if s.stopped {
			continue
		}
		i := 0
		if s.start > t.pos {
			i = int(s.start - t.pos)
		}
		for ; i < len(out) && s.off < len(s.samples); i++ {
			out[i] += s.samples[s.off]
			s.off++
		}
		if s.off >= len(s.samples) {
			if s.onEnded != nil {
				ended = append(ended, s.onEnded)
			}
			continue
		}
		kept = append(kept, s)
	}
	clear(t.playing[len(kept):])
	t.playing = kept
	t.pos = windowEnd
	t.mu.Unlock()

	for i := range out {
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	for _, fn := range ended {
		fn()
	}
}

// Close stops every source. Subsequent Schedule calls fail with
// [audio.ErrClosed] and Render outputs silence.
func (t *Timeline) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
	t.playing = nil
}

func (t *Timeline) samplesToDuration(n int64) time.Duration {
	if t.rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(t.rate)
}

// durationToSamples rounds to the nearest sample: durations derived from
// sample counts are truncated to whole nanoseconds.
func (t *Timeline) durationToSamples(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return (int64(d)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

// mixdown averages all channels of buf into a single plane.
func mixdown(buf *audio.Buffer) []float32 {
	if buf == nil || len(buf.Channels) == 0 {
		return nil
	}
	if len(buf.Channels) == 1 {
		return buf.Channels[0]
	}
	out := make([]float32, buf.Frames())
	scale := 1 / float32(len(buf.Channels))
	for _, ch := range buf.Channels {
		for i, v := range ch {
			out[i] += v * scale
		}
	}
	return out
}
