package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/concess/internal/cli/output"
	"github.com/marmos91/concess/internal/cli/timeutil"
	"github.com/marmos91/concess/pkg/apiclient"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIURL  string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the concess server.

This command checks the PID file and the readiness endpoint of the
operations API, and shows how many users and groups are being served.

Examples:
  # Check status (uses default settings)
  concess status

  # Check status of a server with a custom API address
  concess status --api-url http://127.0.0.1:9080

  # Output as JSON
  concess status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/concess/concess.pid)")
	statusCmd.Flags().StringVar(&statusAPIURL, "api-url", "", "Operations API URL (default: derived from the configuration)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running  bool   `json:"running" yaml:"running"`
	PID      int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Healthy  bool   `json:"healthy" yaml:"healthy"`
	Message  string `json:"message" yaml:"message"`
	Users    int    `json:"users" yaml:"users"`
	Groups   int    `json:"groups" yaml:"groups"`
	LoadedAt string `json:"loaded_at,omitempty" yaml:"loaded_at,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{Message: "Server is not running"}
	if pid, running := isProcessRunning(statusPidFile); running {
		status.Running = true
		status.PID = pid
	}

	client := newAPIClient(statusAPIURL).WithTimeout(2 * time.Second)
	checkReadiness(context.Background(), client, &status)

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(cmd.OutOrStdout(), status, time.Now())
	}
	return nil
}

// checkReadiness fills status from the readiness probe. It works for both
// daemon and foreground mode, since it does not need the PID file.
func checkReadiness(ctx context.Context, client *apiclient.Client, status *ServerStatus) {
	ready, err := client.Ready(ctx)
	if err == nil {
		status.Running = true
		status.Healthy = true
		status.Users = ready.Users
		status.Groups = ready.Groups
		status.LoadedAt = ready.LoadedAt
		status.Message = "Server is running and healthy"
		return
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		status.Running = true
		status.Message = fmt.Sprintf("Server is running but unhealthy: %s", apiErr.Message)
		return
	}
	if status.Running {
		status.Message = "Server process exists but the API is unreachable"
	}
}

func printStatusTable(w io.Writer, status ServerStatus, now time.Time) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "concess Server Status")
	_, _ = fmt.Fprintln(w, "=====================")
	_, _ = fmt.Fprintln(w)

	if status.Running {
		if status.Healthy {
			_, _ = fmt.Fprintf(w, "  Status:     \033[32m● Running\033[0m\n")
		} else {
			_, _ = fmt.Fprintf(w, "  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID > 0 {
			_, _ = fmt.Fprintf(w, "  PID:        %d\n", status.PID)
		}
		if status.Healthy {
			_, _ = fmt.Fprintf(w, "  Users:      %d\n", status.Users)
			_, _ = fmt.Fprintf(w, "  Groups:     %d\n", status.Groups)
		}
		if status.LoadedAt != "" {
			_, _ = fmt.Fprintf(w, "  Loaded:     %s (%s)\n",
				timeutil.FormatTime(status.LoadedAt), timeutil.FormatAge(status.LoadedAt, now))
		}
	} else {
		_, _ = fmt.Fprintf(w, "  Status:     \033[31m○ Stopped\033[0m\n")
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  %s\n", status.Message)
	_, _ = fmt.Fprintln(w)
}
