package directory

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by errors.Is against a *LoadError.
var (
	ErrUnreadable    = errors.New("unreadable record")
	ErrMalformed     = errors.New("malformed record")
	ErrDuplicateUser = errors.New("duplicate username")
	ErrInconsistent  = errors.New("inconsistent record")
)

// LoadErrorKind classifies why a directory could not be built.
type LoadErrorKind int

const (
	// Unreadable means a file or the users directory could not be read.
	Unreadable LoadErrorKind = iota
	// Malformed means a record failed to parse or validate.
	Malformed
	// Duplicate means two files resolve to the same username.
	Duplicate
	// Inconsistent means a record contradicts its file name or another record.
	Inconsistent
)

func (k LoadErrorKind) String() string {
	switch k {
	case Unreadable:
		return "unreadable"
	case Malformed:
		return "malformed"
	case Duplicate:
		return "duplicate"
	case Inconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

func (k LoadErrorKind) sentinel() error {
	switch k {
	case Unreadable:
		return ErrUnreadable
	case Malformed:
		return ErrMalformed
	case Duplicate:
		return ErrDuplicateUser
	default:
		return ErrInconsistent
	}
}

// LoadError reports a failure to build a Directory. A single bad record fails
// the whole load.
type LoadError struct {
	Kind     LoadErrorKind
	Path     string // offending file, or the users directory
	Username string // empty when the failure is not tied to one user
	Err      error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s record %s", e.Kind, e.Path)
	if e.Username != "" {
		msg += fmt.Sprintf(" (user %q)", e.Username)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *LoadError) Is(target error) bool {
	return target == e.Kind.sentinel()
}
