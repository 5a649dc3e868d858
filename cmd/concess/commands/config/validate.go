package config

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/pkg/config"
	"github.com/marmos91/concess/pkg/directory"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the concess configuration file.

Checks for syntax errors, missing required fields, and invalid values,
then loads the user records from data.path the way the server would at
startup.

Examples:
  # Validate default config
  concess config validate

  # Validate specific config file
  concess config validate --config /etc/concess/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(w, "Validation: OK")

	d, loadErr := directory.Load(cfg.Data.Path)
	printWarnings(w, warnings(cfg, loadErr))
	printSummary(w, cfg, d)

	if loadErr != nil {
		return fmt.Errorf("user records: %w", loadErr)
	}
	return nil
}

// warnings lists settings that are valid but probably unintended.
func warnings(cfg *config.Config, loadErr error) []string {
	var out []string

	if loadErr != nil {
		out = append(out, fmt.Sprintf("User records cannot be loaded, the server would refuse to start: %v", loadErr))
	}

	if cfg.LDAP.Enabled && cfg.LDAP.AllowAnonymousSearch {
		out = append(out, "LDAP anonymous search is enabled; every user entry is readable without a bind")
	}

	if cfg.RADIUS.Enabled {
		if cfg.RADIUS.RequireMessageAuthenticator != nil && !*cfg.RADIUS.RequireMessageAuthenticator {
			out = append(out, "RADIUS Message-Authenticator is not required; responses can be forged by an on-path attacker")
		}
		if len(cfg.RADIUS.Secret) > 0 && len(cfg.RADIUS.Secret) < 16 {
			out = append(out, "RADIUS shared secret is shorter than 16 characters")
		}
	}

	if cfg.API.IsEnabled() && cfg.API.Unprotected() {
		out = append(out, "Operations API has no token and listens beyond loopback; anyone who can reach it can trigger reloads")
	}

	return out
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\nWarnings:")
	for _, msg := range warnings {
		_, _ = fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func printSummary(w io.Writer, cfg *config.Config, d *directory.Directory) {
	_, _ = fmt.Fprintf(w, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(w, "  Data path:       %s\n", cfg.Data.Path)
	if d != nil {
		_, _ = fmt.Fprintf(w, "  Records:         %d users, %d groups\n", d.UserCount(), d.GroupCount())
	}
	if cfg.LDAP.Enabled {
		_, _ = fmt.Fprintf(w, "  LDAP:            port %d, base DN %s\n", cfg.LDAP.Port, cfg.LDAP.BaseDN)
	} else {
		_, _ = fmt.Fprintln(w, "  LDAP:            disabled")
	}
	if cfg.RADIUS.Enabled {
		_, _ = fmt.Fprintf(w, "  RADIUS:          port %d, %d client networks\n", cfg.RADIUS.Port, len(cfg.RADIUS.Clients))
	} else {
		_, _ = fmt.Fprintln(w, "  RADIUS:          disabled")
	}
	if cfg.API.IsEnabled() {
		_, _ = fmt.Fprintf(w, "  API port:        %d\n", cfg.API.Port)
	}
	_, _ = fmt.Fprintf(w, "  Log level:       %s\n", cfg.Logging.Level)
}
