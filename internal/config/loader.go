package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"chat":  {"gemini", "mock"},
	"video": {"gemini", "mock"},
	"live":  {"gemini", "mock"},
}

// SupportedAspectRatios lists the aspect ratios the video service accepts.
var SupportedAspectRatios = []string{"9:16"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("video", cfg.Providers.Video.Name)
	validateProviderName("live", cfg.Providers.Live.Name)

	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must be positive", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}
	if cfg.Audio.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("audio.send_queue %d must not be negative", cfg.Audio.SendQueue))
	}

	if cfg.Video.AspectRatio != "" && !slices.Contains(SupportedAspectRatios, cfg.Video.AspectRatio) {
		errs = append(errs, fmt.Errorf("video.aspect_ratio %q is unsupported; valid values: %v", cfg.Video.AspectRatio, SupportedAspectRatios))
	}
	if cfg.Video.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("video.poll_interval %s must be positive", cfg.Video.PollInterval))
	}

	if cfg.Persona.Instructions == "" {
		slog.Warn("persona.instructions is empty; the built-in persona will be used")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or a provider registered at runtime",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
