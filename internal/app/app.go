// Package app wires providers, devices and controllers into a running
// vivavoce process.
//
// An [App] runs exactly one [Mode] per process: the chat REPL, a single video
// job, or a live voice session. Next to the mode it serves /metrics, /healthz
// and /readyz and, when a config file is watched, hot-reloads the persona and
// log level.
//
// For testing, inject doubles through the [Providers] struct and functional
// options ([WithDevices], [WithIO], [WithGate], ...).
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vivavoce/internal/config"
	"github.com/MrWong99/vivavoce/internal/health"
	"github.com/MrWong99/vivavoce/internal/keygate"
	"github.com/MrWong99/vivavoce/internal/live"
	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/internal/persona"
	"github.com/MrWong99/vivavoce/internal/videogen"
	"github.com/MrWong99/vivavoce/pkg/audio"
)

// Mode selects what the process does.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeVideo Mode = "video"
	ModeLive  Mode = "live"
)

// ParseMode validates a mode name from the command line.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeChat, ModeVideo, ModeLive:
		return m, nil
	}
	return "", fmt.Errorf("app: unknown mode %q (want chat, video or live)", s)
}

// VideoRequest is the command-line input of [ModeVideo].
type VideoRequest struct {
	Prompt    string
	ImagePath string
	Aspect    string
}

// shutdownTimeout bounds the telemetry server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// App owns the subsystems of one process.
type App struct {
	cfg       *config.Config
	providers *Providers

	gate    keygate.Gate
	devices audio.Devices
	metrics *observe.Metrics
	in      io.Reader
	out     io.Writer

	conv *persona.Conversation
	gen  *videogen.Generator
	ctrl *live.Controller

	// liveErrs receives transport failures of the running session.
	liveErrs chan error

	pmu  sync.RWMutex
	pers persona.Persona

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithDevices sets the audio devices used by [ModeLive].
func WithDevices(d audio.Devices) Option {
	return func(a *App) { a.devices = d }
}

// WithGate sets the API-key gate. Default: a closed static gate.
func WithGate(g keygate.Gate) Option {
	return func(a *App) { a.gate = g }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithIO sets the terminal streams. Default: os.Stdin and os.Stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// WithCloser registers fn to run during Shutdown, after the app's own
// subsystems have been released.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New builds the subsystems for every configured provider.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil || providers == nil {
		return nil, errors.New("app: config and providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		in:        os.Stdin,
		out:       os.Stdout,
		liveErrs:  make(chan error, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.gate == nil {
		a.gate = keygate.NewStatic("")
	}

	a.pers = persona.Persona{Name: cfg.Persona.Name, Instructions: cfg.Persona.Instructions}
	p := a.pers
	if providers.Chat != nil {
		a.conv = persona.NewConversation(providers.Chat, p, persona.WithMetrics(a.metrics))
	}
	if providers.Video != nil {
		a.gen = videogen.New(providers.Video,
			videogen.WithPollInterval(cfg.Video.PollInterval),
			videogen.WithOutputDir(cfg.Video.OutputDir),
			videogen.WithMetrics(a.metrics),
		)
	}
	if providers.Live != nil {
		if a.devices == nil {
			return nil, errors.New("app: live mode needs audio devices")
		}
		a.ctrl = live.New(providers.Live, a.devices, a.gate, live.Config{
			Instructions:     p.SystemInstruction(),
			Voice:            cfg.Live.Voice,
			InputSampleRate:  cfg.Audio.InputSampleRate,
			OutputSampleRate: cfg.Audio.OutputSampleRate,
			FrameSize:        cfg.Audio.FrameSize,
			SendQueue:        cfg.Audio.SendQueue,
		},
			live.WithMetrics(a.metrics),
			live.WithOnError(func(err error) {
				select {
				case a.liveErrs <- err:
				default:
				}
			}),
		)
	}
	return a, nil
}

func (a *App) persona() persona.Persona {
	a.pmu.RLock()
	defer a.pmu.RUnlock()
	return a.pers
}

// ApplyConfig applies the hot-reloadable parts of a config change. The
// persona reaches the chat conversation on its next turn and the live
// controller on its next start.
func (a *App) ApplyConfig(_, new *config.Config, diff config.ConfigDiff) {
	if !diff.PersonaChanged {
		return
	}
	p := persona.Persona{Name: new.Persona.Name, Instructions: new.Persona.Instructions}
	a.pmu.Lock()
	a.pers = p
	a.pmu.Unlock()
	if a.conv != nil {
		a.conv.SetPersona(p)
	}
	if a.ctrl != nil {
		a.ctrl.SetInstructions(p.SystemInstruction())
	}
	slog.Info("persona updated", "name", p.Name)
}

// Checkers returns the readiness checks for the configured subsystems.
func (a *App) Checkers() []health.Checker {
	configured := make(map[string]any)
	if a.conv != nil {
		configured["chat"] = a.providers.Chat
	}
	if a.gen != nil {
		configured["video"] = a.providers.Video
	}
	checks := []health.Checker{
		health.ProvidersConfigured(configured),
		health.KeySelected(a.gate),
	}
	if a.ctrl != nil {
		checks = append(checks, health.LiveSession(a.ctrl))
	}
	return checks
}

// TelemetryHandler serves /metrics from metricsHandler plus the health
// endpoints, all wrapped in the observe middleware.
func (a *App) TelemetryHandler(metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	health.New(a.Checkers()...).Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// RunOptions configures [App.Run].
type RunOptions struct {
	// Video is the job to run in [ModeVideo].
	Video VideoRequest

	// TelemetryListener, if set, serves [App.TelemetryHandler] on it for
	// the duration of the run.
	TelemetryListener net.Listener

	// MetricsHandler is mounted at /metrics.
	MetricsHandler http.Handler

	// Watcher, if set, hot-reloads the config during the run.
	Watcher *config.Watcher
}

// Run executes mode until it finishes or ctx is cancelled. The telemetry
// server and config watcher run alongside and stop with it.
func (a *App) Run(ctx context.Context, mode Mode, opts RunOptions) error {
	g, gctx := errgroup.WithContext(ctx)
	modeCtx, modeDone := context.WithCancel(gctx)
	defer modeDone()

	if opts.TelemetryListener != nil {
		srv := &http.Server{
			Handler:           a.TelemetryHandler(opts.MetricsHandler),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("telemetry server listening", "addr", opts.TelemetryListener.Addr().String())
			if err := srv.Serve(opts.TelemetryListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: telemetry server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-modeCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if opts.Watcher != nil {
		g.Go(func() error { return opts.Watcher.Run(modeCtx) })
	}

	g.Go(func() error {
		defer modeDone()
		switch mode {
		case ModeChat:
			return a.RunChat(modeCtx)
		case ModeVideo:
			return a.RunVideo(modeCtx, opts.Video)
		case ModeLive:
			return a.RunLive(modeCtx)
		default:
			return fmt.Errorf("app: unknown mode %q", mode)
		}
	})
	return g.Wait()
}

// Shutdown releases every subsystem. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		var errs []error
		if a.ctrl != nil {
			if e := a.ctrl.Stop(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if e := a.closers[i](); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// lines reads r line by line on its own goroutine until EOF or ctx is done.
// A blocked terminal read cannot be interrupted, so the goroutine may outlive
// ctx until the next newline.
func lines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			select {
			case ch <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
