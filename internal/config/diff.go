package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// takes effect on the next start.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged is true if the persona name or instructions changed.
	PersonaChanged bool
	NewPersona     PersonaConfig

	// RestartRequired lists sections that changed but cannot be hot-reloaded.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PersonaChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Persona != new.Persona {
		d.PersonaChanged = true
		d.NewPersona = new.Persona
	}

	if old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.metrics_addr")
	}
	if !sameEntry(old.Providers.Chat, new.Providers.Chat) ||
		!sameEntry(old.Providers.Video, new.Providers.Video) ||
		!sameEntry(old.Providers.Live, new.Providers.Live) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Video != new.Video {
		d.RestartRequired = append(d.RestartRequired, "video")
	}
	if old.Live != new.Live {
		d.RestartRequired = append(d.RestartRequired, "live")
	}
	return d
}

// sameEntry compares the scalar fields of two provider entries. Options are
// not compared.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
