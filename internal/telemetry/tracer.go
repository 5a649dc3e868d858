package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/concess/internal/logger"
)

// Attribute keys for protocol operations. Client and user keys follow the
// OpenTelemetry semantic conventions; protocol keys use their own prefix.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"

	// ========================================================================
	// Protocol attributes
	// ========================================================================
	AttrProtocol  = "protocol.name" // ldap, radius
	AttrOperation = "auth.operation"
	AttrResult    = "auth.result"

	// ========================================================================
	// LDAP attributes
	// ========================================================================
	AttrLDAPMessageID = "ldap.message_id"
	AttrLDAPBaseDN    = "ldap.base_dn"
	AttrLDAPScope     = "ldap.scope"
	AttrLDAPFilter    = "ldap.filter"
	AttrLDAPEntries   = "ldap.entries"
	AttrLDAPResult    = "ldap.result_code"

	// ========================================================================
	// RADIUS attributes
	// ========================================================================
	AttrRADIUSIdentifier = "radius.identifier"
	AttrRADIUSMethod     = "radius.method"

	// ========================================================================
	// User attributes
	// ========================================================================
	AttrUsername = "user.name"

	// ========================================================================
	// Directory attributes
	// ========================================================================
	AttrDirectoryUsers  = "directory.users"
	AttrDirectoryGroups = "directory.groups"
)

// Span names. Format: <protocol>.<operation>.
const (
	SpanLDAPBind     = "ldap.bind"
	SpanLDAPSearch   = "ldap.search"
	SpanLDAPExtended = "ldap.extended"

	SpanRADIUSAccessRequest = "radius.access_request"
	SpanRADIUSStatusServer  = "radius.status_server"

	SpanDirectoryReload = "directory.reload"
)

// ClientAddr returns an attribute for the client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Protocol returns an attribute for the protocol name
func Protocol(name string) attribute.KeyValue {
	return attribute.String(AttrProtocol, name)
}

// Operation returns an attribute for the operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Result returns an attribute for the operation outcome
func Result(result string) attribute.KeyValue {
	return attribute.String(AttrResult, result)
}

// Username returns an attribute for the username or bind DN
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// LDAPMessageID returns an attribute for the LDAP message ID
func LDAPMessageID(id int64) attribute.KeyValue {
	return attribute.Int64(AttrLDAPMessageID, id)
}

// LDAPBaseDN returns an attribute for the search base
func LDAPBaseDN(dn string) attribute.KeyValue {
	return attribute.String(AttrLDAPBaseDN, dn)
}

// LDAPScope returns an attribute for the search scope
func LDAPScope(scope string) attribute.KeyValue {
	return attribute.String(AttrLDAPScope, scope)
}

// LDAPFilter returns an attribute for the search filter
func LDAPFilter(filter string) attribute.KeyValue {
	return attribute.String(AttrLDAPFilter, filter)
}

// LDAPEntries returns an attribute for the number of returned entries
func LDAPEntries(n int) attribute.KeyValue {
	return attribute.Int(AttrLDAPEntries, n)
}

// LDAPResultCode returns an attribute for the LDAP result code
func LDAPResultCode(code uint16) attribute.KeyValue {
	return attribute.Int(AttrLDAPResult, int(code))
}

// RADIUSMethod returns an attribute for the authentication method (pap, chap)
func RADIUSMethod(method string) attribute.KeyValue {
	return attribute.String(AttrRADIUSMethod, method)
}

// DirectorySize returns the user and group count attributes
func DirectorySize(users, groups int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrDirectoryUsers, users),
		attribute.Int(AttrDirectoryGroups, groups),
	}
}

// StartLDAPSpan starts a server span for an LDAP operation. The client
// address is taken from the request's log context, which gets the trace ID
// in return.
func StartLDAPSpan(ctx context.Context, name string, msgID int64, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startServerSpan(ctx, name, "ldap", append(attrs, LDAPMessageID(msgID))...)
}

// StartRADIUSSpan starts a server span for a RADIUS request.
func StartRADIUSSpan(ctx context.Context, name string, identifier byte, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startServerSpan(ctx, name, "radius",
		append(attrs, attribute.Int(AttrRADIUSIdentifier, int(identifier)))...)
}

// StartDirectorySpan starts a span for a directory operation such as a reload.
func StartDirectorySpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

func startServerSpan(ctx context.Context, name, protocol string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, Protocol(protocol))
	lc := logger.FromContext(ctx)
	if lc != nil && lc.Client != "" {
		all = append(all, ClientAddr(lc.Client))
	}
	all = append(all, attrs...)

	ctx, span := StartSpan(ctx, name, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindServer))
	if lc != nil {
		if id := TraceID(ctx); id != "" {
			ctx = logger.WithContext(ctx, lc.WithTrace(id))
		}
	}
	return ctx, span
}
