package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
shutdown_timeout: 5s
data:
  path: /srv/concess
  watch: true
ldap:
  base_dn: dc=corp,dc=example
  allow_anonymous_search: true
  timeouts:
    idle: 1m
radius:
  enabled: true
  secret: testing123
  group_attribute: Class
  required_groups: [vpn]
  clients:
    - name: ap1
      network: 192.0.2.0/24
      secret: ap-secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected json format, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Data.Path != "/srv/concess" || !cfg.Data.Watch {
		t.Errorf("Unexpected data config: %+v", cfg.Data)
	}
	if !cfg.LDAP.Enabled || cfg.LDAP.BaseDN != "dc=corp,dc=example" || !cfg.LDAP.AllowAnonymousSearch {
		t.Errorf("Unexpected ldap config: %+v", cfg.LDAP)
	}
	if cfg.LDAP.Timeouts.Idle != time.Minute {
		t.Errorf("Expected idle timeout 1m, got %v", cfg.LDAP.Timeouts.Idle)
	}
	if cfg.LDAP.Timeouts.Read != 30*time.Second {
		t.Errorf("Expected default read timeout, got %v", cfg.LDAP.Timeouts.Read)
	}
	if cfg.LDAP.Port != 10389 || cfg.RADIUS.Port != 1812 {
		t.Errorf("Expected default ports, got ldap=%d radius=%d", cfg.LDAP.Port, cfg.RADIUS.Port)
	}
	if cfg.LDAP.ShutdownTimeout != 5*time.Second || cfg.RADIUS.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout copied into adapters")
	}
	if len(cfg.RADIUS.Clients) != 1 || cfg.RADIUS.Clients[0].Network != "192.0.2.0/24" {
		t.Errorf("Unexpected radius clients: %+v", cfg.RADIUS.Clients)
	}
	if len(cfg.RADIUS.RequiredGroups) != 1 || cfg.RADIUS.RequiredGroups[0] != "vpn" {
		t.Errorf("Unexpected required groups: %v", cfg.RADIUS.RequiredGroups)
	}
	if cfg.RADIUS.RequireMessageAuthenticator == nil || !*cfg.RADIUS.RequireMessageAuthenticator {
		t.Errorf("Expected Message-Authenticator required by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
data:
  path: /srv/concess
`)
	t.Setenv("CONCESS_LOGGING_LEVEL", "warn")
	t.Setenv("CONCESS_LDAP_PORT", "3389")
	t.Setenv("CONCESS_RADIUS_ENABLED", "true")
	t.Setenv("CONCESS_RADIUS_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected WARN from environment, got %q", cfg.Logging.Level)
	}
	if cfg.LDAP.Port != 3389 {
		t.Errorf("Expected ldap port 3389 from environment, got %d", cfg.LDAP.Port)
	}
	if !cfg.RADIUS.Enabled || cfg.RADIUS.Secret != "from-env" {
		t.Errorf("Expected radius enabled with secret from environment, got %+v", cfg.RADIUS)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Data.Path != DefaultDataPath {
		t.Errorf("Expected default data path, got %q", cfg.Data.Path)
	}
	if !cfg.LDAP.Enabled {
		t.Errorf("Expected LDAP enabled by default")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "ldap: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
radius:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Expected validation error for RADIUS without a secret")
	}
}

func TestMustLoad_MissingFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := GetDefaultConfig()
	cfg.LDAP.BaseDN = "dc=saved,dc=example"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved config failed: %v", err)
	}
	if loaded.LDAP.BaseDN != "dc=saved,dc=example" {
		t.Errorf("Expected saved base DN, got %q", loaded.LDAP.BaseDN)
	}
	if loaded.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Errorf("Expected shutdown timeout %v, got %v", cfg.ShutdownTimeout, loaded.ShutdownTimeout)
	}
}

func TestGetDefaultConfigPath_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := filepath.Join(dir, "concess", "config.yaml")
	if got := GetDefaultConfigPath(); got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if DefaultConfigExists() {
		t.Errorf("Expected no default config in an empty directory")
	}
}
