package config

import (
	"strings"
	"time"

	"github.com/marmos91/concess/pkg/adapter/ldap"
	"github.com/marmos91/concess/pkg/adapter/radius"
	"github.com/marmos91/concess/pkg/directory"
)

// DefaultDataPath is where records are looked up when data.path is unset.
const DefaultDataPath = "/var/lib/concess"

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - The server-wide shutdown timeout is copied into both adapters
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyDataDefaults(&cfg.Data)
	applyLDAPDefaults(&cfg.LDAP, cfg.ShutdownTimeout)
	applyRADIUSDefaults(&cfg.RADIUS, cfg.ShutdownTimeout)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDataDefaults(cfg *DataConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultDataPath
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = directory.DefaultWatchDebounce
	}
}

func applyLDAPDefaults(cfg *ldap.Config, shutdown time.Duration) {
	if cfg.Port == 0 {
		cfg.Port = ldap.DefaultPort
	}
	cfg.ShutdownTimeout = shutdown
	cfg.ApplyDefaults()
}

func applyRADIUSDefaults(cfg *radius.Config, shutdown time.Duration) {
	if cfg.Port == 0 {
		cfg.Port = radius.DefaultPort
	}
	cfg.ShutdownTimeout = shutdown
	cfg.ApplyDefaults()
}

// applyMetricsDefaults sets metrics defaults.
// Port defaults to 9090; it is only bound when metrics are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// LDAP is enabled under dc=example,dc=org. RADIUS stays disabled because it
// cannot run without a shared secret.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Data: DataConfig{Path: DefaultDataPath},
		LDAP: ldap.Config{
			Enabled: true,
			BaseDN:  "dc=example,dc=org",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

// DefaultConfig is an alias of GetDefaultConfig.
func DefaultConfig() *Config {
	return GetDefaultConfig()
}
