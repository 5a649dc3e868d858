package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags first, then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if !cfg.LDAP.Enabled && !cfg.RADIUS.Enabled {
		return errors.New("at least one of ldap or radius must be enabled")
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}

	if err := cfg.LDAP.Validate(); err != nil {
		return err
	}
	if err := cfg.RADIUS.Validate(); err != nil {
		return err
	}

	if err := checkPortConflicts(cfg); err != nil {
		return err
	}
	return nil
}

// checkPortConflicts rejects two TCP listeners on the same port. RADIUS is
// UDP and cannot clash with them.
func checkPortConflicts(cfg *Config) error {
	used := make(map[int]string)
	claim := func(name string, enabled bool, port int) error {
		if !enabled || port == 0 {
			return nil
		}
		if other, ok := used[port]; ok {
			return fmt.Errorf("%s.port %d is already used by %s", name, port, other)
		}
		used[port] = name
		return nil
	}

	if err := claim("ldap", cfg.LDAP.Enabled, cfg.LDAP.Port); err != nil {
		return err
	}
	if err := claim("metrics", cfg.Metrics.Enabled, cfg.Metrics.Port); err != nil {
		return err
	}
	return claim("api", cfg.API.IsEnabled(), cfg.API.Port)
}
