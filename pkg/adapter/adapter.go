// Package adapter defines the lifecycle contract shared by the concess
// protocol servers and the TCP plumbing the LDAP server builds on.
package adapter

import (
	"context"
)

// Adapter is a protocol server managed by the runtime.
//
// Lifecycle:
//  1. Creation: the adapter is built from its config and the directory views
//  2. Startup: Serve binds the listener or socket and blocks
//  3. Shutdown: cancelling the Serve context, or calling Stop, drains the
//     adapter within the shutdown timeout
//
// Implementations must be safe for concurrent use; Stop may race with Serve.
type Adapter interface {
	// Serve runs the server until ctx is cancelled or a fatal error occurs.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if the server could not start or did not drain in time
	//
	// Returning before ctx is cancelled is treated as fatal by the runtime,
	// which then stops every other adapter.
	Serve(ctx context.Context) error

	// Stop initiates shutdown and waits for in-flight work up to ctx's
	// deadline. It is idempotent.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name used in logs and metric labels
	// ("LDAP", "RADIUS").
	Protocol() string

	// Port returns the configured port.
	Port() int

	// MapError translates a directory error into the protocol's result code.
	// Returns nil for errors the protocol has no code for.
	MapError(err error) ProtocolError
}
