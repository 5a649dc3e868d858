package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	Protocol  string    // ldap, radius, api
	ConnID    string    // LDAP connection identifier
	Client    string    // Remote address
	Operation string    // bind, search, access-request, ...
	User      string    // Username or bind DN once known
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a protocol peer
func NewLogContext(protocol, client string) *LogContext {
	return &LogContext{
		Protocol:  protocol,
		Client:    client,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithOperation returns a copy with the operation set and the clock restarted
func (lc *LogContext) WithOperation(op string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Operation = op
		c.StartTime = time.Now()
	}
	return c
}

// WithUser returns a copy with the user set
func (lc *LogContext) WithUser(user string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.User = user
	}
	return c
}

// WithTrace returns a copy with the trace ID set
func (lc *LogContext) WithTrace(traceID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
	}
	return c
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
