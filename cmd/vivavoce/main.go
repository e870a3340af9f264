// Command vivavoce talks to a persona by text, generates short portrait
// videos and holds live voice conversations from the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/vivavoce/internal/app"
	"github.com/MrWong99/vivavoce/internal/config"
	"github.com/MrWong99/vivavoce/internal/keygate"
	"github.com/MrWong99/vivavoce/internal/observe"
	"github.com/MrWong99/vivavoce/pkg/audio/local"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: vivavoce [-config path] <chat|video|live> [flags]

  chat    text chat with the persona; /reset clears history, /quit exits
  video   generate a portrait video: -prompt text [-image file] [-aspect 9:16]
  live    live voice session; an empty line or Ctrl+C stops it
`

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	configPath := flag.String("config", "", "path to the YAML configuration file (defaults apply when empty)")
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		return 2
	}
	mode, err := app.ParseMode(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vivavoce: %v\n", err)
		return 2
	}
	video, err := parseVideoFlags(mode, flag.Args()[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "vivavoce: %v\n", err)
		return 2
	}

	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vivavoce: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vivavoce: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))
	slog.Info("vivavoce starting", "mode", mode, "config", *configPath, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── API key ───────────────────────────────────────────────────────────────
	entry := providerEntry(cfg, mode)
	gate := keygate.NewInteractive(keygate.Resolve(entry.APIKey, os.Getenv), os.Stdin, os.Stderr)
	if entry.Name == config.DefaultProvider {
		if err := gate.SelectKey(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "vivavoce: %v (set GEMINI_API_KEY or providers.%s.api_key)\n", err, mode)
			return 1
		}
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := app.BuildProviders(app.NewRegistry(), cfg, mode, gate.Key())
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	opts := []app.Option{app.WithGate(gate), app.WithMetrics(tel.Metrics)}
	if mode == app.ModeLive {
		devices, err := local.New()
		if err != nil {
			slog.Error("failed to initialise audio", "err", err)
			return 1
		}
		opts = append(opts, app.WithDevices(devices), app.WithCloser(devices.Close))
	}

	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	runOpts := app.RunOptions{Video: video, MetricsHandler: tel.MetricsHandler()}
	if addr := cfg.Server.MetricsAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to listen for telemetry", "addr", addr, "err", err)
			return 1
		}
		runOpts.TelemetryListener = ln
	}
	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, func(old, new *config.Config, diff config.ConfigDiff) {
			if diff.LogLevelChanged {
				level.Set(slogLevel(diff.NewLogLevel))
			}
			application.ApplyConfig(old, new, diff)
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		} else {
			runOpts.Watcher = w
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	code := 0
	if err := application.Run(ctx, mode, runOpts); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	return code
}

func parseVideoFlags(mode app.Mode, args []string) (app.VideoRequest, error) {
	var req app.VideoRequest
	if mode != app.ModeVideo {
		if len(args) > 0 {
			return req, fmt.Errorf("%s takes no arguments, got %q", mode, strings.Join(args, " "))
		}
		return req, nil
	}
	fs := flag.NewFlagSet("video", flag.ContinueOnError)
	fs.StringVar(&req.Prompt, "prompt", "", "text description of the video")
	fs.StringVar(&req.ImagePath, "image", "", "optional seed image file")
	fs.StringVar(&req.Aspect, "aspect", "", "aspect ratio (only 9:16 is supported)")
	if err := fs.Parse(args); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, errors.New("video: -prompt is required")
	}
	return req, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return config.Load(path)
}

func providerEntry(cfg *config.Config, mode app.Mode) config.ProviderEntry {
	switch mode {
	case app.ModeVideo:
		return cfg.Providers.Video
	case app.ModeLive:
		return cfg.Providers.Live
	default:
		return cfg.Providers.Chat
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
