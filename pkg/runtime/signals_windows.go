//go:build windows

package runtime

import "context"

// watchSignals is a no-op on Windows, which has no SIGHUP. Use the
// operations API or data.watch to reload.
func (r *Runtime) watchSignals(_ context.Context) func() {
	return func() {}
}
