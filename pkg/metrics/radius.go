package metrics

import "time"

// RADIUSMetrics provides observability for the RADIUS adapter.
type RADIUSMetrics interface {
	// RecordRequest records an answered request.
	//
	// Parameters:
	//   - code: request code (e.g., "Access-Request", "Status-Server")
	//   - result: "accept" or "reject"
	//   - method: "pap", "chap", or "" when no credential was checked
	//   - duration: Time from dequeue to response
	RecordRequest(code string, result string, method string, duration time.Duration)

	// RecordDropped counts a datagram dropped without a response.
	//
	// Parameters:
	//   - reason: "queue_full", "unknown_client", "malformed",
	//     "bad_authenticator", "missing_authenticator", "unsupported_code",
	//     "duplicate"
	RecordDropped(reason string)

	// SetQueueDepth updates the number of datagrams waiting for a worker.
	SetQueueDepth(depth int)
}
