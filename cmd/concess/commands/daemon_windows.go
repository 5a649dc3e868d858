//go:build windows

package commands

import "errors"

// errDaemonUnsupported is returned by start without --foreground on Windows,
// where there is no fork/setsid to detach from the console.
var errDaemonUnsupported = errors.New("background mode is not available on Windows: run 'concess start --foreground' under a service manager")

func startDaemon() error {
	return errDaemonUnsupported
}
