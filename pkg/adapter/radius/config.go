package radius

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"time"

	radiuswire "github.com/marmos91/concess/internal/protocol/radius"
)

// DefaultPort is the IANA RADIUS authentication port.
const DefaultPort = 1812

// DefaultQueueSize bounds the datagrams waiting for a worker.
const DefaultQueueSize = 1024

// ClientConfig is a shared secret for the NAS clients in a network.
type ClientConfig struct {
	// Name identifies the client in logs.
	Name string `mapstructure:"name" yaml:"name"`

	// Network is a CIDR, e.g. 10.0.0.0/8 or 192.0.2.10/32.
	Network string `mapstructure:"network" yaml:"network" validate:"required,cidr"`

	// Secret is the RADIUS shared secret for clients in Network.
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required"`
}

// Config holds configuration parameters for the RADIUS server.
//
// Default values (applied by ApplyDefaults if zero):
//   - RequireMessageAuthenticator: true
//   - Workers: 4 * GOMAXPROCS
//   - QueueSize: 1024
type Config struct {
	// Enabled controls whether the RADIUS adapter is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BindAddress is the IP address to listen on. Empty listens on all
	// interfaces.
	BindAddress string `mapstructure:"bind_address" yaml:"bind_address" validate:"omitempty,ip"`

	// Port is the UDP port to listen on. The configuration layer defaults
	// it to DefaultPort; 0 here picks a free port.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// Secret is the shared secret for clients not matched by Clients.
	// Empty means unmatched clients are ignored.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Clients are per-network shared secrets. The first matching network
	// wins.
	Clients []ClientConfig `mapstructure:"clients" yaml:"clients" validate:"dive"`

	// RequireMessageAuthenticator drops Access-Requests without a
	// Message-Authenticator attribute. Status-Server always requires one.
	//
	// When disabled, an unsigned request cannot prove it used the right
	// secret. PAP requests whose password decrypts to non-printable bytes
	// are dropped as a wrong secret, but CHAP requests with a wrong secret
	// are indistinguishable from a wrong password and get an Access-Reject.
	RequireMessageAuthenticator *bool `mapstructure:"require_message_authenticator" yaml:"require_message_authenticator"`

	// GroupAttribute names a reply attribute that receives one value per
	// group of the user, e.g. Class or Filter-Id. Empty disables it.
	GroupAttribute string `mapstructure:"group_attribute" yaml:"group_attribute"`

	// RequiredGroups rejects users outside all of these groups. Empty
	// accepts every authenticated user.
	RequiredGroups []string `mapstructure:"required_groups" yaml:"required_groups"`

	// Workers is the number of goroutines processing requests.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=0"`

	// QueueSize bounds datagrams waiting for a worker. Datagrams arriving
	// at a full queue are dropped.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=0"`

	// ShutdownTimeout is copied from the server-wide shutdown_timeout.
	ShutdownTimeout time.Duration `mapstructure:"-" yaml:"-" json:"-"`
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.RequireMessageAuthenticator == nil {
		required := true
		c.RequireMessageAuthenticator = &required
	}
	if c.Workers == 0 {
		c.Workers = 4 * runtime.GOMAXPROCS(0)
	}
	if c.QueueSize == 0 {
		c.QueueSize = DefaultQueueSize
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
	if c.Secret == "" && len(c.Clients) == 0 {
		return errors.New("radius: a secret or at least one client is required")
	}
	for i, cl := range c.Clients {
		if _, _, err := net.ParseCIDR(cl.Network); err != nil {
			return fmt.Errorf("radius.clients[%d].network: %w", i, err)
		}
		if cl.Secret == "" {
			return fmt.Errorf("radius.clients[%d].secret is required", i)
		}
	}
	if c.GroupAttribute != "" {
		if _, ok := radiuswire.LookupAttribute(c.GroupAttribute); !ok {
			return fmt.Errorf("radius.group_attribute: %w: %s", radiuswire.ErrUnknownAttribute, c.GroupAttribute)
		}
	}
	return nil
}

func (c *Config) requireMessageAuthenticator() bool {
	return c.RequireMessageAuthenticator == nil || *c.RequireMessageAuthenticator
}
