package ldap

import (
	"fmt"
	"time"

	"github.com/marmos91/concess/internal/protocol/ldap"
	"github.com/marmos91/concess/pkg/identity"
)

// DefaultPort is the unprivileged LDAP port used when none is configured.
const DefaultPort = 10389

// TimeoutsConfig groups the per-connection timeouts.
type TimeoutsConfig struct {
	// Read bounds reading one request once its first byte arrived.
	// 0 means no timeout.
	Read time.Duration `mapstructure:"read" yaml:"read" validate:"min=0"`

	// Write bounds writing all responses to one request.
	// 0 means no timeout.
	Write time.Duration `mapstructure:"write" yaml:"write" validate:"min=0"`

	// Idle closes connections that send nothing for this long.
	// 0 keeps idle connections open indefinitely.
	Idle time.Duration `mapstructure:"idle" yaml:"idle" validate:"min=0"`
}

// Config holds configuration parameters for the LDAP server.
//
// Default values (applied by ApplyDefaults if zero):
//   - MaxMessageSize: 1MiB
//   - Timeouts.Read: 30s
//   - Timeouts.Write: 30s
//   - Timeouts.Idle: 5m
type Config struct {
	// Enabled controls whether the LDAP adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the IP address to listen on. Empty listens on all
	// interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the TCP port to listen on. The configuration layer defaults
	// it to DefaultPort; 0 here picks a free port.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// BaseDN is the suffix of the served tree, e.g. dc=example,dc=org.
	BaseDN string `mapstructure:"base_dn" yaml:"base_dn" validate:"required_if=Enabled true"`

	// AllowAnonymousSearch lets sessions that have not bound as a user
	// search the tree. The Root DSE is always readable.
	AllowAnonymousSearch bool `mapstructure:"allow_anonymous_search" yaml:"allow_anonymous_search"`

	// AllowUnsupportedFilters answers searches using substring, ordering,
	// approximate or extensible filters with an empty result instead of
	// unwillingToPerform.
	AllowUnsupportedFilters bool `mapstructure:"allow_unsupported_filters" yaml:"allow_unsupported_filters"`

	// MaxConnections limits concurrent client connections. 0 means
	// unlimited.
	MaxConnections int `mapstructure:"max_connections" yaml:"max_connections" validate:"min=0"`

	// MaxMessageSize is the largest accepted LDAPMessage in bytes. Larger
	// messages close the connection.
	MaxMessageSize int `mapstructure:"max_message_size" yaml:"max_message_size" validate:"min=0"`

	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts"`

	// ShutdownTimeout is copied from the server-wide shutdown_timeout.
	ShutdownTimeout time.Duration `mapstructure:"-" yaml:"-" json:"-"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = ldap.DefaultMaxMessageSize
	}
	if c.Timeouts.Read == 0 {
		c.Timeouts.Read = 30 * time.Second
	}
	if c.Timeouts.Write == 0 {
		c.Timeouts.Write = 30 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the settings that struct tags cannot express.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := identity.ParseDN(c.BaseDN); err != nil {
		return fmt.Errorf("ldap.base_dn: %w", err)
	}
	return nil
}
