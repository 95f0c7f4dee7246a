// Package config defines process configuration and its loading rules.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the operational HTTP listen address.
	Addr string `koanf:"addr"`

	// IngestAddr configures the TCP listen address receivers connect to.
	IngestAddr string `koanf:"ingest_addr"`

	// ResolutionDelayMS is D: how long to collect copies of a message
	// before resolving it, in milliseconds.
	ResolutionDelayMS int `koanf:"resolution_delay_ms"`

	// QueueSize bounds the in-memory observation queue.
	QueueSize int `koanf:"queue_size"`

	// BlacklistPath is the operator blacklist file. Missing file means an
	// empty blacklist.
	BlacklistPath string `koanf:"blacklist_path"`

	// PseudorangeLog enables the per-fix diagnostic JSON log when set.
	PseudorangeLog string `koanf:"pseudorange_log"`

	// PropagationSpeed overrides the feasibility-check propagation speed
	// in m/s. Zero keeps the speed of light in air.
	PropagationSpeed float64 `koanf:"propagation_speed"`

	// AircraftExpirySec drops aircraft not heard for this many seconds.
	AircraftExpirySec int `koanf:"aircraft_expiry_sec"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9090",
		IngestAddr:        ":30004",
		ResolutionDelayMS: 2500,
		QueueSize:         65536,
		BlacklistPath:     "mlat-blacklist.txt",
		AircraftExpirySec: 300,
	}
}
