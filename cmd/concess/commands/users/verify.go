package users

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/prompt"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

var verifyStdin bool

// ErrVerifyFailed is returned when the password does not match.
var ErrVerifyFailed = errors.New("password does not match")

var verifyCmd = &cobra.Command{
	Use:   "verify <username>",
	Short: "Check a password against a user record",
	Long: `Check a password against the stored credential of a user record, the
same way an LDAP simple bind or a RADIUS PAP request would.

The command exits with status 2 when the password does not match, and
with status 1 when the user is unknown or disabled or the records cannot
be loaded.

Examples:
  # Prompt for the password
  concess users verify alice

  # Read the password from standard input
  echo 'wonderland' | concess users verify alice --stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyStdin, "stdin", false, "Read the password from standard input")
}

func runVerify(cmd *cobra.Command, args []string) error {
	d, err := loadDirectory(cmd)
	if err != nil {
		return err
	}
	rec, err := lookup(d, args[0])
	if err != nil {
		return err
	}

	var password string
	if verifyStdin {
		password, err = readLine(cmd.InOrStdin())
	} else {
		password, err = prompt.Password("Password")
	}
	if err != nil {
		if prompt.IsAborted(err) {
			return errors.New("aborted")
		}
		return err
	}

	if err := verify(rec, password); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Password matches for %s\n", rec.Username)
	return nil
}

// verify applies the checks a password bind goes through.
func verify(rec *directory.Record, password string) error {
	if rec.Disabled {
		return fmt.Errorf("user %s is disabled", rec.Username)
	}
	if password == "" {
		return errors.New("empty password")
	}
	if !credential.Verify(rec.Credential, credential.Password(password)) {
		return ErrVerifyFailed
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
