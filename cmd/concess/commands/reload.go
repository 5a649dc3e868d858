package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reloadPidFile string
	reloadViaAPI  bool
	reloadAPIURL  string
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload user records",
	Long: `Make a running concess server re-read its user records.

By default, sends SIGHUP to the process in the PID file. With --api the
reload goes through the operations API instead, which reports the load
error if a record is invalid. Either way a failed load keeps the previous
records in effect.

Examples:
  # Reload via signal (uses default PID file)
  concess reload

  # Reload via the operations API
  concess reload --api

  # Reload a server on another port
  concess reload --api --api-url http://127.0.0.1:9080`,
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().StringVar(&reloadPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/concess/concess.pid)")
	reloadCmd.Flags().BoolVar(&reloadViaAPI, "api", false, "Reload through the operations API instead of SIGHUP")
	reloadCmd.Flags().StringVar(&reloadAPIURL, "api-url", "", "Operations API URL (default: derived from the configuration)")
}

func runReload(cmd *cobra.Command, args []string) error {
	if reloadViaAPI {
		return reloadThroughAPI(cmd)
	}

	pid, _, err := readPidFile(reloadPidFile)
	if err != nil {
		return err
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := reloadProcess(process, pid); err != nil {
		if errors.Is(err, errProcessDone) {
			return fmt.Errorf("server process %d is not running", pid)
		}
		return err
	}

	fmt.Println("Reload signal sent. Check the server log for the result.")
	return nil
}

func reloadThroughAPI(cmd *cobra.Command) error {
	info, err := newAPIClient(reloadAPIURL).Reload(context.Background())
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Directory reloaded")
	_, _ = fmt.Fprintf(out, "  Users:  %d\n", info.Users)
	_, _ = fmt.Fprintf(out, "  Groups: %d\n", info.Groups)
	_, _ = fmt.Fprintf(out, "  Digest: %s\n", info.Digest)
	return nil
}
