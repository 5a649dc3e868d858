package users

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/output"
	"github.com/marmos91/concess/pkg/directory"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups derived from user records",
	Long: `List every group named by at least one user record, with its members.

Examples:
  concess users groups
  concess users groups -o yaml`,
	Args: cobra.NoArgs,
	RunE: runGroups,
}

// GroupView is the serialized form of a derived group.
type GroupView struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members" yaml:"members"`
}

// maxMembersPerRow caps the MEMBERS cell of the group table. The full
// member list is available with -o json or -o yaml.
const maxMembersPerRow = 8

// GroupList is a list of groups for table rendering.
type GroupList []GroupView

// Headers implements TableRenderer.
func (gl GroupList) Headers() []string {
	return []string{"GROUP", "SIZE", "MEMBERS"}
}

// Rows implements TableRenderer.
func (gl GroupList) Rows() [][]string {
	rows := make([][]string, 0, len(gl))
	for _, g := range gl {
		rows = append(rows, []string{g.Name, strconv.Itoa(len(g.Members)), output.List(g.Members, maxMembersPerRow)})
	}
	return rows
}

// Summary implements output.Summarizer.
func (gl GroupList) Summary() string {
	return output.Count(len(gl), "group")
}

func newGroupList(d *directory.Directory) GroupList {
	groups := make(GroupList, 0, d.GroupCount())
	for _, g := range d.Groups() {
		groups = append(groups, GroupView{Name: g.Name, Members: g.Members})
	}
	return groups
}

func runGroups(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	d, err := loadDirectory(cmd)
	if err != nil {
		return err
	}

	groups := newGroupList(d)
	return output.Print(cmd.OutOrStdout(), format, groups, groups, len(groups) == 0, "No groups found.")
}
