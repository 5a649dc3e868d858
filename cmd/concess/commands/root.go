// Package commands implements the concess command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/concess/cmd/concess/commands/config"
	"github.com/marmos91/concess/cmd/concess/commands/users"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "concess",
	Short: "concess - LDAP and RADIUS authentication from YAML records",
	Long: `concess is a lightweight authentication server. It answers LDAP binds and
searches and RADIUS Access-Requests from a directory of per-user YAML files.

Records live under <data.path>/users/<username>.yaml and are reloaded on
SIGHUP, on 'concess reload', through the operations API, or automatically
when data.watch is enabled.

Use "concess [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/concess/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(users.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
