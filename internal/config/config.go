// Package config provides the configuration schema, loader, and provider
// registry for vivavoce.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 4096
	DefaultSendQueue        = 32
	DefaultAspectRatio      = "9:16"
	DefaultPollInterval     = 10 * time.Second
	DefaultVoice            = "Zephyr"
	DefaultProvider         = "gemini"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Persona   PersonaConfig   `yaml:"persona"`
	Audio     AudioConfig     `yaml:"audio"`
	Video     VideoConfig     `yaml:"video"`
	Live      LiveConfig      `yaml:"live"`
}

// ServerConfig holds logging and telemetry settings.
type ServerConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address serving /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the telemetry server.
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig selects the provider implementation for each mode. Each
// field names a provider registered in the [Registry].
type ProvidersConfig struct {
	Chat  ProviderEntry `yaml:"chat"`
	Video ProviderEntry `yaml:"video"`
	Live  ProviderEntry `yaml:"live"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini").
	Name string `yaml:"name"`

	// APIKey authenticates against the hosted service. When empty the key
	// gate falls back to the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// PersonaConfig is the scripted character used by chat and live sessions.
type PersonaConfig struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

// AudioConfig fixes the device formats of the live session.
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`

	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`

	// SendQueue bounds the number of encoded frames waiting to be sent.
	SendQueue int `yaml:"send_queue"`
}

// VideoConfig holds video generation settings.
type VideoConfig struct {
	AspectRatio  string        `yaml:"aspect_ratio"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// OutputDir is where downloaded videos are written.
	OutputDir string `yaml:"output_dir"`
}

// LiveConfig holds live voice session settings.
type LiveConfig struct {
	// Voice is the prebuilt voice the model speaks with.
	Voice string `yaml:"voice"`
}

// ApplyDefaults fills zero values with their defaults. It is called by
// [LoadFromReader] before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	for _, e := range []*ProviderEntry{&cfg.Providers.Chat, &cfg.Providers.Video, &cfg.Providers.Live} {
		if e.Name == "" {
			e.Name = DefaultProvider
		}
	}
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Audio.SendQueue == 0 {
		cfg.Audio.SendQueue = DefaultSendQueue
	}
	if cfg.Video.AspectRatio == "" {
		cfg.Video.AspectRatio = DefaultAspectRatio
	}
	if cfg.Video.PollInterval == 0 {
		cfg.Video.PollInterval = DefaultPollInterval
	}
	if cfg.Video.OutputDir == "" {
		cfg.Video.OutputDir = "."
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = DefaultVoice
	}
}
