// Package identity maps the flat user directory onto the two protocol models
// served by concess: the LDAP tree of entries and the RADIUS flat attribute
// reply.
//
// Both views read the active directory snapshot on every call and hold no
// mutable state of their own beyond per-snapshot caches.
package identity

import (
	"errors"

	"github.com/marmos91/concess/pkg/directory"
)

var (
	// ErrInvalidCredentials is returned for unknown users, disabled users and
	// credential mismatches alike, so callers cannot tell them apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthorized is returned when a user authenticated but is not a
	// member of any required group.
	ErrNotAuthorized = errors.New("user not authorized")
)

// Source provides the active directory snapshot. *directory.Store
// implements it.
type Source interface {
	Snapshot() *directory.Directory
}

// StaticSource serves a fixed snapshot. Useful for tests and one-shot tools.
type StaticSource struct {
	Directory *directory.Directory
}

// Snapshot returns the fixed snapshot.
func (s StaticSource) Snapshot() *directory.Directory { return s.Directory }
