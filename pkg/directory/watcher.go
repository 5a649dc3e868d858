package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/concess/internal/logger"
)

// DefaultWatchDebounce coalesces bursts of editor writes into one reload.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watch reloads the store whenever the users directory changes, until ctx is
// done. Events are debounced so an editor's write-rename-chmod sequence
// triggers a single reload. Reload failures are logged and the previous
// snapshot keeps serving.
//
// Watch blocks; run it in its own goroutine.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir := UsersPath(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logger.Info("Watching users directory for changes", logger.KeyPath, dir, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			logger.Debug("Users directory changed", logger.KeyPath, ev.Name, "event", ev.Op.String())
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Users directory watcher error", logger.Err(err))

		case <-timer.C:
			// errors are already logged and counted by Reload
			_ = s.Reload()
		}
	}
}
