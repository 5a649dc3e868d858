//go:build !windows

package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestIsProcessRunning_NonexistentFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nonexistent.pid")

	pid, running := isProcessRunning(pidPath)
	if running || pid != 0 {
		t.Errorf("isProcessRunning() for nonexistent file: got (%d, %v), want (0, false)", pid, running)
	}
}

func TestIsProcessRunning_InvalidPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "invalid.pid")
	if err := os.WriteFile(pidPath, []byte("notanumber"), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	pid, running := isProcessRunning(pidPath)
	if running || pid != 0 {
		t.Errorf("isProcessRunning() for invalid PID: got (%d, %v), want (0, false)", pid, running)
	}
}

func TestIsProcessRunning_DeadProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "dead.pid")
	// PID 9999999 is above the default pid_max on Linux and macOS.
	if err := os.WriteFile(pidPath, []byte("9999999"), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	pid, running := isProcessRunning(pidPath)
	if running || pid != 0 {
		t.Errorf("isProcessRunning() for dead process: got (%d, %v), want (0, false)", pid, running)
	}
}

func TestIsProcessRunning_CurrentProcess(t *testing.T) {
	currentPID := os.Getpid()
	pidPath := filepath.Join(t.TempDir(), "current.pid")
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", currentPID)), 0644); err != nil {
		t.Fatalf("failed to write pid file: %v", err)
	}

	pid, running := isProcessRunning(pidPath)
	if !running {
		t.Fatal("isProcessRunning() for current process: got running=false, want true")
	}
	if pid != currentPID {
		t.Errorf("isProcessRunning() for current process: got pid=%d, want %d", pid, currentPID)
	}
}

func TestSignalProcess_Done(t *testing.T) {
	proc, err := os.StartProcess("/bin/sh", []string{"sh", "-c", "exit 0"}, &os.ProcAttr{})
	if err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	if _, err := proc.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if err := signalProcess(proc, os.Interrupt); err != errProcessDone {
		t.Errorf("signalProcess() on reaped process: got %v, want errProcessDone", err)
	}
}
