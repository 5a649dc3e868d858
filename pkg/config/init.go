package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// sampleTemplate is the annotated file written by `concess config init`.
const sampleTemplate = `# concess configuration file
#
# Every key can be overridden by an environment variable, e.g.
#   CONCESS_LOGGING_LEVEL=DEBUG
#   CONCESS_RADIUS_SECRET=...

logging:
  level: {{ .Logging.Level }}      # DEBUG, INFO, WARN, ERROR
  format: {{ .Logging.Format }}     # text, json
  output: {{ .Logging.Output }}   # stdout, stderr, or a file path

telemetry:
  enabled: false
  endpoint: {{ .Telemetry.Endpoint }}
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: {{ .Telemetry.Profiling.Endpoint }}

shutdown_timeout: {{ .ShutdownTimeout }}

# User records live in <path>/users/<username>.yaml
data:
  path: {{ .Data.Path }}
  watch: false             # reload automatically on file changes
  watch_debounce: {{ .Data.WatchDebounce }}

ldap:
  enabled: {{ .LDAP.Enabled }}
  bind_address: ""
  port: {{ .LDAP.Port }}
  base_dn: {{ .LDAP.BaseDN }}
  allow_anonymous_search: false
  allow_unsupported_filters: false
  max_connections: 0       # 0 = unlimited
  max_message_size: {{ .LDAP.MaxMessageSize }}
  timeouts:
    read: {{ .LDAP.Timeouts.Read }}
    write: {{ .LDAP.Timeouts.Write }}
    idle: {{ .LDAP.Timeouts.Idle }}

radius:
  enabled: false
  bind_address: ""
  port: {{ .RADIUS.Port }}
  secret: ""               # shared secret for clients not listed below
  clients: []
  #  - name: office-ap
  #    network: 192.0.2.0/24
  #    secret: change-me
  require_message_authenticator: true  # false weakens wrong-secret detection (BlastRADIUS)
  group_attribute: ""      # e.g. Class or Filter-Id
  required_groups: []
  queue_size: {{ .RADIUS.QueueSize }}

metrics:
  enabled: false
  port: {{ .Metrics.Port }}

api:
  enabled: true
  port: {{ .API.Port }}
  token: ""                # bearer token for /api/v1, empty = open
`

// RenderSample renders the annotated default configuration.
func RenderSample() (string, error) {
	tmpl, err := template.New("config").Parse(sampleTemplate)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, GetDefaultConfig()); err != nil {
		return "", err
	}
	return b.String(), nil
}

// InitConfig writes the sample configuration to the default location and
// returns its path.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the sample configuration to path. An existing file
// is only replaced when force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	sample, err := RenderSample()
	if err != nil {
		return fmt.Errorf("failed to render sample config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sample), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
