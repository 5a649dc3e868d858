// Package users implements read-only inspection of the user record store.
package users

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/pkg/config"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

var (
	dataPath     string
	outputFormat string
)

// Cmd is the parent command for user record inspection.
var Cmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect user records",
	Long: `Inspect the user records concess serves.

The records are read straight from <data.path>/users with the same loader
the server uses, so a record that fails here would also fail a reload.
Records are edited with any text editor; use 'concess hash-password' to
produce password hashes and 'concess reload' to publish changes.

Examples:
  # List users
  concess users list

  # Show one user
  concess users show alice

  # Check a password against the stored credential
  concess users verify alice

  # Inspect a data directory other than the configured one
  concess users list --data /srv/concess`,
}

func init() {
	Cmd.PersistentFlags().StringVar(&dataPath, "data", "", "Data directory (default: data.path from the configuration)")
	Cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(groupsCmd)
	Cmd.AddCommand(verifyCmd)
}

// loadDirectory loads the records under --data, or under data.path of the
// configuration named by --config.
func loadDirectory(cmd *cobra.Command) (*directory.Directory, error) {
	path := dataPath
	if path == "" {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		path = cfg.Data.Path
	}
	return directory.Load(path)
}

// lookup resolves a username exactly, then case-insensitively.
func lookup(d *directory.Directory, username string) (*directory.Record, error) {
	if rec, ok := d.LookupUser(username); ok {
		return rec, nil
	}
	if rec, ok := d.LookupUserFold(username); ok {
		return rec, nil
	}
	return nil, fmt.Errorf("user %q not found in %s", username, directory.UsersPath(d.Path()))
}

// UserView is the serialized form of a record. It never carries the
// credential itself, only its scheme.
type UserView struct {
	Username    string              `json:"username" yaml:"username"`
	Name        string              `json:"name" yaml:"name"`
	FirstName   string              `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName    string              `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	DisplayName string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Mail        string              `json:"mail,omitempty" yaml:"mail,omitempty"`
	Groups      []string            `json:"groups" yaml:"groups"`
	Attributes  map[string][]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Credential  string              `json:"credential" yaml:"credential"`
	Disabled    bool                `json:"disabled" yaml:"disabled"`
}

func newUserView(rec *directory.Record) UserView {
	groups := rec.Groups
	if groups == nil {
		groups = []string{}
	}
	return UserView{
		Username:    rec.Username,
		Name:        rec.Name(),
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
		DisplayName: rec.DisplayName,
		Mail:        rec.Mail,
		Groups:      groups,
		Attributes:  rec.Attributes,
		Credential:  credential.SchemeOf(rec.Credential).String(),
		Disabled:    rec.Disabled,
	}
}
