package config

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/output"
	"github.com/marmos91/concess/pkg/config"
)

const redactedValue = "<redacted>"

var (
	showOutput  string
	showSecrets bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective concess configuration, after defaults and
environment overrides are applied.

RADIUS shared secrets and the API token are redacted unless
--show-secrets is given.

Examples:
  # Show config as YAML
  concess config show

  # Show as JSON
  concess config show --output json

  # Show specific config file
  concess config show --config /etc/concess/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets in clear")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	if !showSecrets {
		cfg = redacted(cfg)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	default:
		return output.PrintYAML(cmd.OutOrStdout(), cfg)
	}
}

// redacted returns a copy of cfg with every secret replaced. cfg itself is
// left untouched.
func redacted(cfg *config.Config) *config.Config {
	out := *cfg
	out.RADIUS.Secret = redact(out.RADIUS.Secret)
	out.RADIUS.Clients = slices.Clone(cfg.RADIUS.Clients)
	for i := range out.RADIUS.Clients {
		out.RADIUS.Clients[i].Secret = redact(out.RADIUS.Clients[i].Secret)
	}
	out.API.Token = redact(out.API.Token)
	return &out
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redactedValue
}
