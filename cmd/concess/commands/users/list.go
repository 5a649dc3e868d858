package users

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/output"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long: `List all user records.

Examples:
  # List users as table
  concess users list

  # List as JSON
  concess users list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// maxGroupsPerRow caps the GROUPS cell of the user table.
const maxGroupsPerRow = 4

// UserList is a list of users for table rendering.
type UserList []UserView

// Headers implements TableRenderer.
func (ul UserList) Headers() []string {
	return []string{"USERNAME", "NAME", "MAIL", "GROUPS", "CREDENTIAL", "DISABLED"}
}

// Rows implements TableRenderer.
func (ul UserList) Rows() [][]string {
	rows := make([][]string, 0, len(ul))
	for _, u := range ul {
		rows = append(rows, []string{
			u.Username,
			u.Name,
			output.Value(u.Mail),
			output.List(u.Groups, maxGroupsPerRow),
			u.Credential,
			output.YesNo(u.Disabled),
		})
	}
	return rows
}

// Summary implements output.Summarizer.
func (ul UserList) Summary() string {
	disabled := 0
	for _, u := range ul {
		if u.Disabled {
			disabled++
		}
	}
	if disabled == 0 {
		return output.Count(len(ul), "user")
	}
	return fmt.Sprintf("%s (%d disabled)", output.Count(len(ul), "user"), disabled)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	d, err := loadDirectory(cmd)
	if err != nil {
		return err
	}

	users := make(UserList, 0, d.UserCount())
	for _, rec := range d.Users() {
		users = append(users, newUserView(rec))
	}
	return output.Print(cmd.OutOrStdout(), format, users, users, len(users) == 0, "No users found.")
}
