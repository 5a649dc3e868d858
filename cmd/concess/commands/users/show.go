package users

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/output"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

var showCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show one user record",
	Long: `Show one user record. The stored credential is never printed; only its
scheme is shown.

Examples:
  concess users show alice
  concess users show alice -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	d, err := loadDirectory(cmd)
	if err != nil {
		return err
	}
	rec, err := lookup(d, args[0])
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, newUserView(rec), nil, false, "")
	}
	return printRecord(cmd.OutOrStdout(), rec)
}

func printRecord(w io.Writer, rec *directory.Record) error {
	pairs := [][2]string{
		{"Username", rec.Username},
		{"Name", rec.Name()},
		{"First name", rec.FirstName},
		{"Last name", rec.LastName},
		{"Mail", rec.Mail},
		{"Groups", output.List(rec.Groups, 0)},
		{"Credential", credential.Redact(rec.Credential)},
		{"CHAP capable", output.YesNo(credential.IsReversible(rec.Credential))},
		{"Disabled", output.YesNo(rec.Disabled)},
	}

	names := make([]string, 0, len(rec.Attributes))
	for name := range rec.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		pairs = append(pairs, [2]string{fmt.Sprintf("Attribute %s", name), strings.Join(rec.Attributes[name], ", ")})
	}

	return output.SimpleTable(w, pairs)
}
