package logger

import "log/slog"

// Standard field keys for structured logging. Use them consistently so logs
// from both protocol engines can be queried the same way.
const (
	KeyTraceID = "trace_id"

	// Protocol & operation
	KeyProtocol  = "protocol"   // ldap, radius, api
	KeyOperation = "op"         // bind, search, unbind, access-request, ...
	KeyResult    = "result"     // protocol result code or accept/reject
	KeyResultMsg = "result_msg" // diagnostic message sent to the client

	// Peer & session
	KeyClient    = "client"
	KeyConnID    = "conn_id"
	KeyMessageID = "msg_id" // LDAP message ID or RADIUS identifier
	KeyUser      = "user"   // Username or bind DN
	KeyBindDN    = "bind_dn"

	// LDAP search
	KeyBaseDN  = "base_dn"
	KeyScope   = "scope"
	KeyFilter  = "filter"
	KeyEntries = "entries"

	// RADIUS
	KeyCode   = "code"
	KeyMethod = "method" // pap, chap
	KeyReason = "reason" // drop reason

	// Directory
	KeyPath   = "path"
	KeyUsers  = "users"
	KeyGroups = "groups"

	// General
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyAddress    = "address"
	KeyCount      = "count"
	KeyPort       = "port"
)

// Err returns an error attribute, or an empty attribute for a nil error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Client returns a client address attribute
func Client(addr string) slog.Attr {
	return slog.String(KeyClient, addr)
}

// User returns a user attribute
func User(name string) slog.Attr {
	return slog.String(KeyUser, name)
}

// MessageID returns a message ID attribute
func MessageID(id int64) slog.Attr {
	return slog.Int64(KeyMessageID, id)
}

// Result returns a result attribute
func Result(r string) slog.Attr {
	return slog.String(KeyResult, r)
}

// DurationMs returns a duration attribute in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}
