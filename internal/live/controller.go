// Package live runs a real-time voice conversation with a hosted model.
//
// A [Controller] owns at most one session at a time. Starting a session opens
// the microphone and speaker, connects the live provider, and wires three
// flows together:
//
//   - capture: microphone frames are encoded as 16-bit PCM blobs and streamed
//     to the session;
//   - playback: audio segments from the session are scheduled back to back on
//     the speaker's clock, with no gaps and no overlap;
//   - barge-in: an interruption from the session stops every queued segment
//     and resets the schedule.
//
// Device callbacks never touch session state. They post events to a single
// event loop goroutine, which is the only writer of the playback schedule.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/vivavoce/internal/keygate"
	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/audio"
	provlive "github.com/MrWong99/vivavoce/pkg/provider/live"
)

// State is the lifecycle state of a [Controller].
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transcript is one transcription fragment from the session, or a turn
// boundary marker when TurnComplete is set.
type Transcript struct {
	Role         provlive.Role
	Text         string
	TurnComplete bool
}

// Config holds the session parameters.
type Config struct {
	// Instructions is the persona system instruction.
	Instructions string

	// Voice is the prebuilt voice name.
	Voice string

	// InputSampleRate is the microphone rate in Hz. Default: 16000.
	InputSampleRate int

	// OutputSampleRate is the speaker rate in Hz. Default: 24000.
	OutputSampleRate int

	// FrameSize is the number of samples per captured frame. Default: 4096.
	FrameSize int

	// SendQueue bounds the number of encoded blobs waiting to be sent.
	// Default: 32.
	SendQueue int

	// EventQueue bounds the controller's event queue. Default: 256.
	EventQueue int
}

func (c *Config) applyDefaults() {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = 16000
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = 24000
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 4096
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 32
	}
	if c.EventQueue <= 0 {
		c.EventQueue = 256
	}
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOnError registers a callback for lifecycle errors that happen outside a
// Start or Stop call, i.e. transport failures of a running session. The
// callback runs on its own goroutine.
func WithOnError(fn func(error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// Controller manages the lifecycle of live voice sessions.
// All exported methods are safe for concurrent use.
type Controller struct {
	provider provlive.Provider
	devices  audio.Devices
	gate     keygate.Gate
	metrics  *observe.Metrics
	onError  func(error)

	mu    sync.Mutex // serialises Start and Stop
	state atomic.Int32
	cfg   Config
	cur   *session

	transcripts chan Transcript
	lastErr     atomic.Pointer[error]
}

// session is everything acquired for one running session.
type session struct {
	handle   provlive.SessionHandle
	in       audio.InputContext
	out      audio.OutputContext
	node     audio.CaptureNode
	playback *playback
	capture  *capture

	events   chan event
	loopDone chan struct{}

	// Source completions bypass events so a full queue cannot lose them.
	endedMu    sync.Mutex
	endedIDs   []uint64
	endedReady chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle Controller.
func New(provider provlive.Provider, devices audio.Devices, gate keygate.Gate, cfg Config, opts ...Option) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		provider:    provider,
		devices:     devices,
		gate:        gate,
		cfg:         cfg,
		transcripts: make(chan Transcript, 64),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Transcripts returns the channel of transcription fragments. The channel is
// shared by all sessions and never closed. Fragments are dropped when the
// consumer falls behind.
func (c *Controller) Transcripts() <-chan Transcript { return c.transcripts }

// LastError returns the transport error that ended the most recent session,
// or nil.
func (c *Controller) LastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// SetInstructions replaces the persona instruction used by the next Start.
func (c *Controller) SetInstructions(instructions string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Instructions = instructions
}

// Start opens the devices and the session and begins streaming in both
// directions. It returns [ErrSessionActive] if a session is already starting
// or running, and a [*PermissionError] if the key gate or the microphone
// denies access. On any failure every acquired resource is released and the
// controller returns to idle.
func (c *Controller) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return ErrSessionActive
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "live.Start")
	defer span.End()

	s, err := c.open(ctx)
	if err != nil {
		c.state.Store(int32(StateIdle))
		span.RecordError(err)
		return err
	}
	c.cur = s
	c.lastErr.Store(nil)
	c.state.Store(int32(StateActive))
	c.metrics.ActiveSessions.Add(ctx, 1)

	observe.Logger(ctx).Info("live session started",
		"input_rate", c.cfg.InputSampleRate,
		"output_rate", c.cfg.OutputSampleRate,
		"voice", c.cfg.Voice,
	)
	return nil
}

// open acquires every resource in order, rolling back on failure.
func (c *Controller) open(ctx context.Context) (s *session, err error) {
	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				slog.Warn("live: rollback release failed", "err", cerr)
			}
		}
	}()

	if c.gate != nil {
		ok, gerr := c.gate.HasSelectedKey(ctx)
		if gerr != nil {
			return nil, fmt.Errorf("live: check api key: %w", gerr)
		}
		if !ok {
			return nil, &PermissionError{Resource: "api_key", Err: keygate.ErrNoKey}
		}
	}

	in, err := c.devices.OpenInput(ctx, c.cfg.InputSampleRate)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return nil, &PermissionError{Resource: "microphone", Err: err}
		}
		return nil, fmt.Errorf("live: open input: %w", err)
	}
	closers = append(closers, in.Close)

	out, err := c.devices.OpenOutput(ctx, c.cfg.OutputSampleRate)
	if err != nil {
		return nil, fmt.Errorf("live: open output: %w", err)
	}
	closers = append(closers, out.Close)

	connectStart := time.Now()
	handle, err := c.provider.Connect(ctx, provlive.SessionConfig{
		Instructions:        c.cfg.Instructions,
		Voice:               c.cfg.Voice,
		InputSampleRate:     c.cfg.InputSampleRate,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		c.metrics.RecordProviderRequest(ctx, "live", "connect", "error")
		return nil, &TransportError{Op: "connect", Err: err}
	}
	c.metrics.RecordProviderRequest(ctx, "live", "connect", "ok")
	c.metrics.LiveConnectDuration.Record(ctx, time.Since(connectStart).Seconds())
	closers = append(closers, handle.Close)

	s = &session{
		handle:     handle,
		in:         in,
		out:        out,
		events:     make(chan event, c.cfg.EventQueue),
		loopDone:   make(chan struct{}),
		endedReady: make(chan struct{}, 1),
	}
	s.playback = newPlayback(out, c.cfg.OutputSampleRate, c.metrics, s.sourceEnded)
	s.capture = newCapture(handle, c.cfg.InputSampleRate, c.cfg.SendQueue, c.metrics)

	// The session is open: wire capture.
	node, err := in.OpenCapture(c.cfg.FrameSize, func(f audio.Frame) {
		c.metrics.FramesCaptured.Add(context.Background(), 1)
		if !s.post(frameCaptured{frame: append(audio.Frame(nil), f...)}) {
			c.metrics.RecordFrameDropped(context.Background(), "event_queue_full")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("live: open capture: %w", err)
	}
	closers = append(closers, node.Stop)
	s.node = node

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(3)
	go func() { defer s.wg.Done(); c.loop(runCtx, s) }()
	go func() { defer s.wg.Done(); c.pump(runCtx, s) }()
	go func() { defer s.wg.Done(); s.capture.run(runCtx) }()
	closers = append(closers, func() error { cancel(); s.wg.Wait(); return nil })

	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("live: start capture: %w", err)
	}
	return s, nil
}

// post enqueues ev without blocking. It reports false if the queue is full.
func (s *session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// sourceEnded records a finished source and wakes the loop. It never blocks
// and never drops: completions accumulate until the loop takes them.
func (s *session) sourceEnded(id uint64) {
	s.endedMu.Lock()
	s.endedIDs = append(s.endedIDs, id)
	s.endedMu.Unlock()
	select {
	case s.endedReady <- struct{}{}:
	default:
	}
}

// takeEnded returns and clears the completions recorded so far.
func (s *session) takeEnded() []uint64 {
	s.endedMu.Lock()
	defer s.endedMu.Unlock()
	ids := s.endedIDs
	s.endedIDs = nil
	return ids
}

// pump forwards session messages into the event loop. When the session ends
// on its own, the error that ended it is posted as a transport failure.
func (c *Controller) pump(ctx context.Context, s *session) {
	msgs := s.handle.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				err := s.handle.Err()
				if err == nil {
					err = errors.New("session closed by server")
				}
				select {
				case s.events <- transportFailed{err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case s.events <- messageReceived{msg: msg}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// loop is the single owner of the session's playback state.
func (c *Controller) loop(ctx context.Context, s *session) {
	defer close(s.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.endedReady:
			for _, id := range s.takeEnded() {
				s.playback.ended(id)
			}
		case ev := <-s.events:
			switch ev := ev.(type) {
			case frameCaptured:
				s.capture.handleFrame(ctx, ev.frame)
			case messageReceived:
				c.handleMessage(ctx, s, ev.msg)
			case snapshotRequest:
				ev.reply <- s.playback.snapshot()
			case transportFailed:
				c.handleTransportFailure(ctx, s, ev.err)
				return
			}
		}
	}
}

func (c *Controller) handleMessage(ctx context.Context, s *session, msg provlive.Message) {
	// An interruption discards everything queued before it, including audio
	// carried by the same message.
	if msg.Interrupted {
		s.playback.interrupt()
		c.metrics.Interruptions.Add(ctx, 1)
		slog.Debug("live: playback interrupted")
	} else {
		for _, seg := range msg.Audio {
			if err := s.playback.handleSegment(ctx, seg); err != nil {
				s.playback.logDrop(ctx, err)
			}
		}
	}
	if msg.InputTranscription != "" {
		c.emitTranscript(Transcript{Role: provlive.RoleUser, Text: msg.InputTranscription})
	}
	if msg.OutputTranscription != "" {
		c.emitTranscript(Transcript{Role: provlive.RoleModel, Text: msg.OutputTranscription})
	}
	if msg.TurnComplete {
		c.emitTranscript(Transcript{Role: provlive.RoleModel, TurnComplete: true})
	}
}

func (c *Controller) emitTranscript(t Transcript) {
	select {
	case c.transcripts <- t:
	default:
		slog.Debug("live: transcript consumer behind, dropping fragment")
	}
}

// handleTransportFailure reports err and tears the session down. The stop
// runs on its own goroutine because Stop waits for this loop to exit.
func (c *Controller) handleTransportFailure(ctx context.Context, s *session, err error) {
	terr := &TransportError{Op: "receive", Err: err}
	var asErr error = terr
	c.lastErr.Store(&asErr)
	c.metrics.RecordProviderError(ctx, "live", "transport")
	observe.Logger(ctx).Error("live: session transport failed", "err", err)

	go func() {
		if c.onError != nil {
			c.onError(terr)
		}
		if stopErr := c.stopSession(context.Background(), s); stopErr != nil {
			slog.Warn("live: implicit stop released with errors", "err", stopErr)
		}
	}()
}

// Stop ends the current session, if any. It is idempotent and safe to call in
// any state. Every release step is attempted even if an earlier one fails;
// the failures are joined and returned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return c.stopSession(ctx, s)
}

// stopSession tears down s if it is still the current session.
func (c *Controller) stopSession(ctx context.Context, s *session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != s {
		return nil
	}
	c.state.Store(int32(StateStopping))

	s.cancel()
	s.wg.Wait()

	// The event loop has exited; the schedule can be touched from here.
	s.playback.interrupt()

	var errs []error
	if err := s.node.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("live: stop capture: %w", err))
	}
	if err := s.in.Close(); err != nil {
		errs = append(errs, fmt.Errorf("live: close input: %w", err))
	}
	if err := s.out.Close(); err != nil {
		errs = append(errs, fmt.Errorf("live: close output: %w", err))
	}
	if err := s.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("live: close session: %w", err))
	}

	c.cur = nil
	c.state.Store(int32(StateIdle))
	c.metrics.ActiveSessions.Add(ctx, -1)

	err := errors.Join(errs...)
	if err != nil {
		observe.Logger(ctx).Warn("live session stopped with errors", "err", err)
	} else {
		observe.Logger(ctx).Info("live session stopped")
	}
	return err
}

// SendText sends a typed user turn into the running session.
func (c *Controller) SendText(ctx context.Context, text string) error {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return errors.New("live: no active session")
	}
	return s.handle.SendText(ctx, text)
}

// Playback returns a copy of the current playback schedule. It returns the
// zero schedule when no session is running.
func (c *Controller) Playback(ctx context.Context) PlaybackSchedule {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return PlaybackSchedule{}
	}
	reply := make(chan PlaybackSchedule, 1)
	select {
	case s.events <- snapshotRequest{reply: reply}:
	case <-s.loopDone:
		return PlaybackSchedule{}
	case <-ctx.Done():
		return PlaybackSchedule{}
	}
	select {
	case ps := <-reply:
		return ps
	case <-s.loopDone:
		return PlaybackSchedule{}
	case <-ctx.Done():
		return PlaybackSchedule{}
	}
}
