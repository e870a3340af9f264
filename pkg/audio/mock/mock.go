// Package mock provides in-memory implementations of the [audio.Devices],
// [audio.InputContext], [audio.CaptureNode] and [audio.OutputContext]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so tests can
// assert on call counts, and expose exported fields that control return values.
// The [OutputContext] runs on a manual clock: tests move time forward with
// [OutputContext.Advance], which completes any sources whose playback window
// has elapsed.
//
// Typical usage:
//
//	in := &mock.InputContext{}
//	out := &mock.OutputContext{}
//	devs := &mock.Devices{Input: in, Output: out}
//	// ... start the code under test ...
//	in.Emit(make(audio.Frame, 4096))
//	out.Advance(200 * time.Millisecond)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/vivavoce/pkg/audio"
)

// ─── Devices ──────────────────────────────────────────────────────────────────

// Devices is a mock implementation of [audio.Devices].
type Devices struct {
	mu sync.Mutex

	// Input is returned by OpenInput. A fresh InputContext is created when nil.
	Input *InputContext

	// Output is returned by OpenOutput. A fresh OutputContext is created when nil.
	Output *OutputContext

	// InputErr, if non-nil, is returned by OpenInput.
	InputErr error

	// OutputErr, if non-nil, is returned by OpenOutput.
	OutputErr error

	// InputRates and OutputRates record the sample rate of every open call.
	InputRates  []int
	OutputRates []int
}

// OpenInput implements [audio.Devices].
func (d *Devices) OpenInput(_ context.Context, sampleRate int) (audio.InputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InputRates = append(d.InputRates, sampleRate)
	if d.InputErr != nil {
		return nil, d.InputErr
	}
	if d.Input == nil {
		d.Input = &InputContext{}
	}
	d.Input.setRate(sampleRate)
	return d.Input, nil
}

// OpenOutput implements [audio.Devices].
func (d *Devices) OpenOutput(_ context.Context, sampleRate int) (audio.OutputContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OutputRates = append(d.OutputRates, sampleRate)
	if d.OutputErr != nil {
		return nil, d.OutputErr
	}
	if d.Output == nil {
		d.Output = &OutputContext{}
	}
	d.Output.setRate(sampleRate)
	return d.Output, nil
}

var _ audio.Devices = (*Devices)(nil)

// ─── InputContext ─────────────────────────────────────────────────────────────

// InputContext is a mock implementation of [audio.InputContext].
type InputContext struct {
	mu sync.Mutex

	// OpenCaptureErr, if non-nil, is returned by OpenCapture.
	OpenCaptureErr error

	// CloseErr is returned by Close.
	CloseErr error

	// StartErr is copied into every CaptureNode created by OpenCapture.
	StartErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// FrameSizes records the frameSize argument of every OpenCapture call.
	FrameSizes []int

	rate   int
	node   *CaptureNode
	closed bool
}

func (c *InputContext) setRate(r int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
	c.closed = false
}

// OpenCapture implements [audio.InputContext].
func (c *InputContext) OpenCapture(frameSize int, onFrame func(audio.Frame)) (audio.CaptureNode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FrameSizes = append(c.FrameSizes, frameSize)
	if c.OpenCaptureErr != nil {
		return nil, c.OpenCaptureErr
	}
	c.node = &CaptureNode{onFrame: onFrame, StartErr: c.StartErr}
	return c.node, nil
}

// SampleRate implements [audio.InputContext].
func (c *InputContext) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// Close implements [audio.InputContext].
func (c *InputContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	c.closed = true
	return c.CloseErr
}

// Closed reports whether Close has been called since the context was last opened.
func (c *InputContext) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Node returns the most recently created capture node, or nil.
func (c *InputContext) Node() *CaptureNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.node
}

// Emit delivers frame to the current capture node's callback, as the audio
// thread would. It reports whether the frame was delivered (a node exists and
// is started).
func (c *InputContext) Emit(frame audio.Frame) bool {
	n := c.Node()
	if n == nil {
		return false
	}
	return n.emit(frame)
}

var _ audio.InputContext = (*InputContext)(nil)

// ─── CaptureNode ──────────────────────────────────────────────────────────────

// CaptureNode is a mock implementation of [audio.CaptureNode].
type CaptureNode struct {
	mu sync.Mutex

	// StartErr is returned by Start.
	StartErr error

	// StopErr is returned by Stop.
	StopErr error

	// CallCountStart and CallCountStop record method invocations.
	CallCountStart int
	CallCountStop  int

	onFrame func(audio.Frame)
	started bool
}

// Start implements [audio.CaptureNode].
func (n *CaptureNode) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CallCountStart++
	if n.StartErr != nil {
		return n.StartErr
	}
	n.started = true
	return nil
}

// Stop implements [audio.CaptureNode].
func (n *CaptureNode) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CallCountStop++
	n.started = false
	return n.StopErr
}

// Started reports whether the node is currently delivering frames.
func (n *CaptureNode) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

func (n *CaptureNode) emit(frame audio.Frame) bool {
	n.mu.Lock()
	started, cb := n.started, n.onFrame
	n.mu.Unlock()
	if !started || cb == nil {
		return false
	}
	cb(frame)
	return true
}

var _ audio.CaptureNode = (*CaptureNode)(nil)

// ─── OutputContext ────────────────────────────────────────────────────────────

// ScheduleCall records a single invocation of [OutputContext.Schedule].
type ScheduleCall struct {
	// Buffer is the buffer passed to Schedule.
	Buffer *audio.Buffer

	// At is the requested start time.
	At time.Duration

	// Source is the handle returned to the caller.
	Source *Source
}

// OutputContext is a mock implementation of [audio.OutputContext] driven by
// a manual clock.
type OutputContext struct {
	mu sync.Mutex

	// ScheduleErr, if non-nil, is returned by Schedule.
	ScheduleErr error

	// CloseErr is returned by Close.
	CloseErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// ScheduleCalls records every successful Schedule call in order.
	ScheduleCalls []ScheduleCall

	rate   int
	now    time.Duration
	closed bool
}

func (o *OutputContext) setRate(r int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rate = r
	o.closed = false
}

// Now implements [audio.OutputContext].
func (o *OutputContext) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// SampleRate implements [audio.OutputContext].
func (o *OutputContext) SampleRate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rate
}

// Schedule implements [audio.OutputContext]. The effective start is
// max(at, Now()).
func (o *OutputContext) Schedule(buf *audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleErr != nil {
		return nil, o.ScheduleErr
	}
	if o.closed {
		return nil, audio.ErrClosed
	}
	start := max(at, o.now)
	src := &Source{
		start:   start,
		end:     start + buf.Duration(),
		onEnded: onEnded,
	}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Buffer: buf, At: at, Source: src})
	return src, nil
}

// Advance moves the clock forward by d and completes every source whose
// playback window ended at or before the new time. onEnded callbacks run
// synchronously on the calling goroutine, outside the context's lock.
func (o *OutputContext) Advance(d time.Duration) {
	o.mu.Lock()
	o.now += d
	now := o.now
	var due []*Source
	for _, c := range o.ScheduleCalls {
		if c.Source.end <= now {
			due = append(due, c.Source)
		}
	}
	o.mu.Unlock()

	for _, s := range due {
		s.finish()
	}
}

// Close implements [audio.OutputContext]. All pending sources are stopped.
func (o *OutputContext) Close() error {
	o.mu.Lock()
	o.CallCountClose++
	o.closed = true
	calls := o.ScheduleCalls
	o.mu.Unlock()

	for _, c := range calls {
		c.Source.Stop()
	}
	return o.CloseErr
}

// Closed reports whether Close has been called since the context was last opened.
func (o *OutputContext) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Calls returns a snapshot of the recorded Schedule calls.
func (o *OutputContext) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ScheduleCall, len(o.ScheduleCalls))
	copy(out, o.ScheduleCalls)
	return out
}

var _ audio.OutputContext = (*OutputContext)(nil)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is the mock [audio.Source] handed out by [OutputContext.Schedule].
type Source struct {
	mu      sync.Mutex
	start   time.Duration
	end     time.Duration
	onEnded func()
	stopped bool
	ended   bool
}

// Start returns the effective start time on the output clock.
func (s *Source) Start() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start
}

// End returns the time at which the source finishes playing.
func (s *Source) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.end
}

// Stop implements [audio.Source].
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.stopped = true
	}
}

// Stopped reports whether Stop was called before the source completed.
func (s *Source) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Source) finish() {
	s.mu.Lock()
	if s.stopped || s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	cb := s.onEnded
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

var _ audio.Source = (*Source)(nil)
