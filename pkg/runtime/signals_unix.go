//go:build !windows

package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchSignals reloads the directory on SIGHUP until ctx is done. The
// returned function stops listening.
func (r *Runtime) watchSignals(ctx context.Context) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				r.reloadOnSignal()
			}
		}
	}()

	return func() {
		signal.Stop(hup)
		<-done
	}
}
