package metrics

import "time"

// DirectoryMetrics provides observability for the record store. It matches
// directory.Metrics.
type DirectoryMetrics interface {
	// RecordReload records a load or reload attempt.
	RecordReload(success bool, duration time.Duration)

	// SetDirectorySize publishes the size of the active snapshot.
	SetDirectorySize(users, groups int)
}
