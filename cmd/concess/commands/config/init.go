package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize an annotated sample configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/concess/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  concess config init

  # Initialize with custom path
  concess config init --config /etc/concess/config.yaml

  # Force overwrite existing config
  concess config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(w, "\nNext steps:")
	_, _ = fmt.Fprintln(w, "  1. Set ldap.base_dn and the RADIUS shared secrets")
	_, _ = fmt.Fprintln(w, "  2. Create <data.path>/users/<username>.yaml records ('concess hash-password' helps)")
	_, _ = fmt.Fprintf(w, "  3. Start the server with: concess start --config %s\n", configPath)
	_, _ = fmt.Fprintln(w, "\nSecrets can also come from the environment, for example:")
	_, _ = fmt.Fprintf(w, "  export %s_RADIUS_SECRET=$(openssl rand -hex 16)\n", config.EnvPrefix)
	return nil
}
