//go:build windows

package commands

import (
	"errors"
	"fmt"
	"os"
)

// isProcessRunning reads a PID from the given file and checks whether
// that process is still alive. On Windows FindProcess opens a handle and
// fails for processes that do not exist.
func isProcessRunning(pidPath string) (int, bool) {
	pid, _, err := readPidFile(pidPath)
	if err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	_ = process.Release()

	return pid, true
}

// stopProcess terminates the concess server process on Windows.
// Force mode uses process.Kill(); graceful mode sends os.Interrupt.
func stopProcess(process *os.Process, pid int, force bool) error {
	var err error
	if force {
		fmt.Printf("Killing process %d...\n", pid)
		err = process.Kill()
	} else {
		fmt.Printf("Sending interrupt to process %d...\n", pid)
		err = process.Signal(os.Interrupt)
	}

	if err == os.ErrProcessDone {
		return errProcessDone
	}
	if err != nil {
		return fmt.Errorf("failed to stop process: %w", err)
	}

	return nil
}

// reloadProcess is unavailable: Windows has no SIGHUP.
func reloadProcess(_ *os.Process, _ int) error {
	return errors.New("signal reload is not supported on Windows, use 'concess reload --api'")
}
