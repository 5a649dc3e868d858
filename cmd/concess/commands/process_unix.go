//go:build !windows

package commands

import (
	"fmt"
	"os"
	"syscall"
)

// isProcessRunning reads a PID from the given file and checks whether
// that process is still alive. Returns the PID and true if running,
// or 0 and false otherwise.
func isProcessRunning(pidPath string) (int, bool) {
	pid, _, err := readPidFile(pidPath)
	if err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// On Unix, FindProcess always succeeds; signal 0 probes for existence.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}

	return pid, true
}

// stopProcess sends the appropriate signal to stop the concess server process.
func stopProcess(process *os.Process, pid int, force bool) error {
	sig, name := syscall.SIGTERM, "SIGTERM"
	if force {
		sig, name = syscall.SIGKILL, "SIGKILL"
	}

	fmt.Printf("Sending %s to process %d...\n", name, pid)
	return signalProcess(process, sig)
}

// reloadProcess asks the server to reload its records.
func reloadProcess(process *os.Process, pid int) error {
	fmt.Printf("Sending SIGHUP to process %d...\n", pid)
	return signalProcess(process, syscall.SIGHUP)
}

func signalProcess(process *os.Process, sig os.Signal) error {
	err := process.Signal(sig)
	if err == os.ErrProcessDone {
		return errProcessDone
	}
	if err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}
	return nil
}
