// Package local implements the [audio.Devices] interfaces on top of the host's
// default sound card via PortAudio.
//
// Capture uses a PortAudio input stream whose buffer size equals the requested
// frame size, so every callback delivers exactly one [audio.Frame]. Playback
// uses a single mono output stream whose callback renders a [Timeline]; the
// timeline's render cursor is the output context's clock.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Devices       = (*Devices)(nil)
	_ audio.InputContext  = (*inputContext)(nil)
	_ audio.OutputContext = (*outputContext)(nil)
	_ audio.CaptureNode   = (*captureNode)(nil)
)

// defaultOutputPeriod is the PortAudio buffer size for the output stream.
const defaultOutputPeriod = 512

// Devices opens PortAudio device contexts. Create one with [New] and call
// [Devices.Close] on shutdown to terminate the PortAudio library.
type Devices struct {
	outputPeriod int

	closeOnce sync.Once
}

// Option configures [Devices].
type Option func(*Devices)

// WithOutputPeriod sets the number of frames per output callback. Smaller
// values lower latency at the cost of more callbacks.
func WithOutputPeriod(frames int) Option {
	return func(d *Devices) {
		if frames > 0 {
			d.outputPeriod = frames
		}
	}
}

// New initialises PortAudio.
func New(opts ...Option) (*Devices, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("local: initialize portaudio: %w", err)
	}
	d := &Devices{outputPeriod: defaultOutputPeriod}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Close terminates PortAudio. Contexts must be closed before calling Close.
func (d *Devices) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

// OpenInput acquires the default microphone.
func (d *Devices) OpenInput(ctx context.Context, sampleRate int) (audio.InputContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("local: default input device: %w: %v", audio.ErrPermissionDenied, err)
	}
	if dev.MaxInputChannels < 1 {
		return nil, fmt.Errorf("local: input device %q: %w: no input channels", dev.Name, audio.ErrPermissionDenied)
	}
	slog.Debug("microphone acquired", "device", dev.Name, "sample_rate", sampleRate)
	return &inputContext{dev: dev, rate: sampleRate}, nil
}

// OpenOutput opens the default speaker and starts rendering silence
// immediately so the clock is running before the first buffer arrives.
func (d *Devices) OpenOutput(ctx context.Context, sampleRate int) (audio.OutputContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("local: default output device: %w", err)
	}

	tl := NewTimeline(sampleRate)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: d.outputPeriod,
	}, func(out []float32) {
		tl.Render(out)
	})
	if err != nil {
		return nil, fmt.Errorf("local: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("local: start output stream: %w", err)
	}
	slog.Debug("speaker opened", "device", dev.Name, "sample_rate", sampleRate)
	return &outputContext{tl: tl, stream: stream}, nil
}

// ── input ─────────────────────────────────────────────────────────────────────

type inputContext struct {
	dev  *portaudio.DeviceInfo
	rate int

	mu     sync.Mutex
	nodes  []*captureNode
	closed bool
}

func (c *inputContext) SampleRate() int { return c.rate }

func (c *inputContext) OpenCapture(frameSize int, onFrame func(audio.Frame)) (audio.CaptureNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrClosed
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   c.dev,
			Channels: 1,
			Latency:  c.dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.rate),
		FramesPerBuffer: frameSize,
	}, func(in []float32) {
		onFrame(audio.Frame(in))
	})
	if err != nil {
		return nil, fmt.Errorf("local: open capture stream: %w", err)
	}
	n := &captureNode{stream: stream}
	c.nodes = append(c.nodes, n)
	return n, nil
}

// Close stops any capture node still attached and releases the microphone.
func (c *inputContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nodes := c.nodes
	c.nodes = nil
	c.mu.Unlock()

	var firstErr error
	for _, n := range nodes {
		if err := n.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type captureNode struct {
	stream *portaudio.Stream

	mu       sync.Mutex
	started  bool
	released bool
}

func (n *captureNode) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return audio.ErrClosed
	}
	if n.started {
		return nil
	}
	if err := n.stream.Start(); err != nil {
		return fmt.Errorf("local: start capture: %w", err)
	}
	n.started = true
	return nil
}

// Stop disconnects and releases the stream. A stopped node cannot be restarted.
func (n *captureNode) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.released {
		return nil
	}
	n.released = true

	var stopErr error
	if n.started {
		stopErr = n.stream.Stop()
		n.started = false
	}
	closeErr := n.stream.Close()
	if stopErr != nil {
		return fmt.Errorf("local: stop capture: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("local: close capture: %w", closeErr)
	}
	return nil
}

// ── output ────────────────────────────────────────────────────────────────────

type outputContext struct {
	tl     *Timeline
	stream *portaudio.Stream

	closeOnce sync.Once
}

func (o *outputContext) Now() time.Duration { return o.tl.Now() }

func (o *outputContext) SampleRate() int { return o.tl.SampleRate() }

func (o *outputContext) Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	return o.tl.Schedule(buf, at, onEnded)
}

func (o *outputContext) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.tl.Close()
		stopErr := o.stream.Stop()
		closeErr := o.stream.Close()
		if stopErr != nil {
			err = fmt.Errorf("local: stop output: %w", stopErr)
		} else if closeErr != nil {
			err = fmt.Errorf("local: close output: %w", closeErr)
		}
	})
	return err
}
