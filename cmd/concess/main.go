package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/concess/cmd/concess/commands"
	"github.com/marmos91/concess/cmd/concess/commands/users"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitMismatch is the exit status of "users verify" when the password does
// not match, so scripts can tell it apart from a broken setup (status 1).
const exitMismatch = 2

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, users.ErrVerifyFailed) {
			os.Exit(exitMismatch)
		}
		os.Exit(1)
	}
}
