package adapter

import "fmt"

// ProtocolError is a directory error translated into a protocol status code.
//
//   - LDAP: resultCode values, e.g. invalidCredentials (49) or
//     noSuchObject (32)
//   - RADIUS: response codes, e.g. Access-Reject (3)
//
// Unwrap exposes the directory error so callers can still match it with
// errors.Is.
type ProtocolError interface {
	error

	// Code returns the numeric protocol status code.
	Code() uint32

	// Message returns the diagnostic text sent to the client.
	Message() string

	// Unwrap returns the underlying directory error.
	Unwrap() error
}

type protocolError struct {
	code    uint32
	message string
	err     error
}

// NewProtocolError wraps err with a protocol status code and the diagnostic
// message to send.
func NewProtocolError(code uint32, message string, err error) ProtocolError {
	return &protocolError{code: code, message: message, err: err}
}

func (e *protocolError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("code %d: %s", e.code, e.message)
	}
	return fmt.Sprintf("code %d: %s: %v", e.code, e.message, e.err)
}

func (e *protocolError) Code() uint32    { return e.code }
func (e *protocolError) Message() string { return e.message }
func (e *protocolError) Unwrap() error   { return e.err }
