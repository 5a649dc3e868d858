package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marmos91/concess/internal/logger"
)

// recordSpans swaps in an in-memory tracer for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prev, prevEnabled := Tracer(), IsEnabled()
	setTracer(provider.Tracer("test"), true)
	t.Cleanup(func() {
		setTracer(prev, prevEnabled)
		_ = provider.Shutdown(context.Background())
	})
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "concess", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	_, span := StartSpan(ctx, "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(2).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestRecordError(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartSpan(context.Background(), "op")
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("boom"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestTraceID(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))

	recordSpans(t)
	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	assert.Len(t, TraceID(ctx), 32)
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    attribute.KeyValue
		wantKey string
		want    any
	}{
		{"ClientAddr", ClientAddr("192.168.1.100:51234"), AttrClientAddr, "192.168.1.100:51234"},
		{"Protocol", Protocol("ldap"), AttrProtocol, "ldap"},
		{"Operation", Operation("bind"), AttrOperation, "bind"},
		{"Result", Result("invalidCredentials"), AttrResult, "invalidCredentials"},
		{"Username", Username("alice"), AttrUsername, "alice"},
		{"LDAPMessageID", LDAPMessageID(42), AttrLDAPMessageID, int64(42)},
		{"LDAPBaseDN", LDAPBaseDN("dc=example,dc=org"), AttrLDAPBaseDN, "dc=example,dc=org"},
		{"LDAPScope", LDAPScope("sub"), AttrLDAPScope, "sub"},
		{"LDAPFilter", LDAPFilter("(uid=alice)"), AttrLDAPFilter, "(uid=alice)"},
		{"LDAPEntries", LDAPEntries(3), AttrLDAPEntries, int64(3)},
		{"LDAPResultCode", LDAPResultCode(49), AttrLDAPResult, int64(49)},
		{"RADIUSMethod", RADIUSMethod("chap"), AttrRADIUSMethod, "chap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, string(tt.attr.Key))
			assert.Equal(t, tt.want, tt.attr.Value.AsInterface())
		})
	}

	t.Run("DirectorySize", func(t *testing.T) {
		attrs := attrMap(DirectorySize(3, 2))
		assert.Equal(t, int64(3), attrs[AttrDirectoryUsers])
		assert.Equal(t, int64(2), attrs[AttrDirectoryGroups])
	})
}

func TestStartLDAPSpanUsesLogContext(t *testing.T) {
	rec := recordSpans(t)

	lc := logger.NewLogContext("ldap", "192.0.2.7:40000")
	ctx := logger.WithContext(context.Background(), lc)

	ctx, span := StartLDAPSpan(ctx, SpanLDAPBind, 3, Username("alice"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanLDAPBind, spans[0].Name())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "ldap", attrs[AttrProtocol])
	assert.Equal(t, "192.0.2.7:40000", attrs[AttrClientAddr])
	assert.Equal(t, int64(3), attrs[AttrLDAPMessageID])
	assert.Equal(t, "alice", attrs[AttrUsername])

	got := logger.FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), got.TraceID)
	assert.Empty(t, lc.TraceID, "the caller's log context is not mutated")
}

func TestStartRADIUSSpanWithoutLogContext(t *testing.T) {
	rec := recordSpans(t)

	_, span := StartRADIUSSpan(context.Background(), SpanRADIUSAccessRequest, 200, RADIUSMethod("pap"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "radius", attrs[AttrProtocol])
	assert.Equal(t, int64(200), attrs[AttrRADIUSIdentifier])
	assert.Equal(t, "pap", attrs[AttrRADIUSMethod])
	assert.NotContains(t, attrs, AttrClientAddr)
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", "mutex_count"})
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = parseProfileTypes([]string{"cpu", "gpu"})
	assert.ErrorContains(t, err, `unknown profile type "gpu"`)

	assert.Contains(t, ProfileTypeNames(), "inuse_space")
}

func TestInitProfilingDisabled(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
	assert.False(t, IsProfilingEnabled())
}
