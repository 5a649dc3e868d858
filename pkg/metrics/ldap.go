package metrics

import "time"

// LDAPMetrics provides observability for the LDAP adapter.
//
// Example usage:
//
//	adapter.SetMetrics(prometheus.NewLDAPMetrics()) // nil when disabled
type LDAPMetrics interface {
	// RecordRequest records a completed operation.
	//
	// Parameters:
	//   - operation: "bind", "search", "extended", "update", ...
	//   - result: LDAP result name (e.g., "success", "invalidCredentials")
	//   - duration: Time taken to produce the final response
	RecordRequest(operation string, result string, duration time.Duration)

	// RecordSearchEntries records how many entries a search returned.
	RecordSearchEntries(count int)

	// RecordProtocolError counts connections closed for malformed input.
	//
	// Parameters:
	//   - kind: "framing" or "protocol"
	RecordProtocolError(kind string)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the force-closed counter.
	RecordConnectionForceClosed()
}
