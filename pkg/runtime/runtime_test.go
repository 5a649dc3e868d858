package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	"github.com/marmos91/concess/pkg/adapter"
	ldapadapter "github.com/marmos91/concess/pkg/adapter/ldap"
	radiusadapter "github.com/marmos91/concess/pkg/adapter/radius"
	"github.com/marmos91/concess/pkg/config"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

func newDataDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(directory.UsersPath(root), 0o755))
	writeUser(t, root, "alice", "password: \"{CLEARTEXT}wonderland\"\ngroups: [admins, users]\n")
	return root
}

func writeUser(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(directory.UsersPath(root), name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func testConfig(root string) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Data.Path = root
	cfg.ShutdownTimeout = 2 * time.Second

	cfg.LDAP.Enabled = true
	cfg.LDAP.BindAddress = "127.0.0.1"
	cfg.LDAP.Port = 0

	cfg.RADIUS.Enabled = true
	cfg.RADIUS.BindAddress = "127.0.0.1"
	cfg.RADIUS.Port = 0
	cfg.RADIUS.Secret = "testing123"
	cfg.RADIUS.Workers = 2

	disabled := false
	cfg.RADIUS.RequireMessageAuthenticator = &disabled
	cfg.API.Enabled = &disabled
	cfg.Metrics.Enabled = false
	return cfg
}

// fakeAdapter serves until stopped, or returns serveErr right away when
// failFast is set.
type fakeAdapter struct {
	protocol string
	failFast bool
	serveErr error

	started chan struct{}
	stopped chan struct{}
	stops   atomic.Int32
}

func newFakeAdapter(protocol string) *fakeAdapter {
	return &fakeAdapter{
		protocol: protocol,
		started:  make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	close(f.started)
	if f.failFast {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stopped:
	}
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	if f.stops.Add(1) == 1 {
		close(f.stopped)
	}
	return nil
}

func (f *fakeAdapter) Protocol() string                     { return f.protocol }
func (f *fakeAdapter) Port() int                            { return 0 }
func (f *fakeAdapter) MapError(error) adapter.ProtocolError { return nil }

type fakeAux struct {
	startErr error
	stopped  atomic.Bool
}

func (f *fakeAux) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeAux) Stop(context.Context) error {
	f.stopped.Store(true)
	return nil
}

func newTestRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()
	root := newDataDir(t)
	store, err := directory.NewStore(root)
	require.NoError(t, err)
	rt := NewWithStore(store)
	rt.SetShutdownTimeout(time.Second)
	return rt, root
}

func TestServeStopsOnCancel(t *testing.T) {
	rt, _ := newTestRuntime(t)
	a := newFakeAdapter("LDAP")
	aux := &fakeAux{}
	rt.AddAdapter(a)
	rt.SetAuxiliaryServer("api", aux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx) }()

	<-a.started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.EqualValues(t, 1, a.stops.Load())
	assert.True(t, aux.stopped.Load())
}

func TestAdapterFailureStopsOthers(t *testing.T) {
	rt, _ := newTestRuntime(t)
	healthy := newFakeAdapter("LDAP")
	broken := newFakeAdapter("RADIUS")
	broken.failFast = true
	broken.serveErr = errors.New("address already in use")
	rt.AddAdapter(healthy)
	rt.AddAdapter(broken)

	err := rt.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RADIUS")
	assert.Contains(t, err.Error(), "address already in use")
	assert.EqualValues(t, 1, healthy.stops.Load())
	assert.EqualValues(t, 0, broken.stops.Load())
}

func TestAdapterReturningNilIsFatal(t *testing.T) {
	rt, _ := newTestRuntime(t)
	a := newFakeAdapter("LDAP")
	a.failFast = true
	rt.AddAdapter(a)

	err := rt.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped unexpectedly")
}

func TestAuxiliaryFailureStopsAdapters(t *testing.T) {
	rt, _ := newTestRuntime(t)
	a := newFakeAdapter("LDAP")
	rt.AddAdapter(a)
	rt.SetAuxiliaryServer("metrics", &fakeAux{startErr: errors.New("bind failed")})

	err := rt.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics server")
	assert.EqualValues(t, 1, a.stops.Load())
}

func TestServeRequiresAdapter(t *testing.T) {
	rt, _ := newTestRuntime(t)
	err := rt.Serve(context.Background())
	assert.Error(t, err)
}

func TestServeOnlyOnce(t *testing.T) {
	rt, _ := newTestRuntime(t)
	rt.AddAdapter(newFakeAdapter("LDAP"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rt.Serve(ctx))

	err := rt.Serve(context.Background())
	assert.EqualError(t, err, "runtime already served")
}

func TestReload(t *testing.T) {
	rt, root := newTestRuntime(t)
	assert.Equal(t, 1, rt.Snapshot().UserCount())

	writeUser(t, root, "bob", "password: \"{CLEARTEXT}builder\"\ngroups: [users]\n")
	require.NoError(t, rt.Reload())
	assert.Equal(t, 2, rt.Snapshot().UserCount())

	writeUser(t, root, "broken", "password: [unterminated\n")
	var loadErr *directory.LoadError
	require.ErrorAs(t, rt.Reload(), &loadErr)
	assert.Equal(t, 2, rt.Snapshot().UserCount(), "previous snapshot keeps serving")
}

func TestNewFailsOnUnreadableDirectory(t *testing.T) {
	cfg := testConfig(t.TempDir())
	_, err := New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrUnreadable)
}

func TestNewBuildsEnabledServers(t *testing.T) {
	cfg := testConfig(newDataDir(t))
	cfg.RADIUS.Enabled = false

	rt, err := New(cfg)
	require.NoError(t, err)
	require.Len(t, rt.Adapters(), 1)
	assert.Equal(t, "LDAP", rt.Adapters()[0].Protocol())
	assert.Empty(t, rt.aux)
}

// TestEndToEnd binds over LDAP and authenticates over RADIUS against the
// same store, then reloads and checks both protocols see the change.
func TestEndToEnd(t *testing.T) {
	root := newDataDir(t)
	rt, err := New(testConfig(root))
	require.NoError(t, err)
	require.Len(t, rt.Adapters(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return")
		}
	})

	ldapAddr := rt.Adapters()[0].(*ldapadapter.Adapter).GetListenerAddr()
	radiusAddr := rt.Adapters()[1].(*radiusadapter.Adapter).GetListenerAddr()
	require.NotEmpty(t, ldapAddr)
	require.NotEmpty(t, radiusAddr)

	conn, err := goldap.DialURL("ldap://" + ldapAddr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.Bind("cn=alice,ou=users,dc=example,dc=org", "wonderland"))

	papCode := func(user, password string) radius.Code {
		pkt := radius.New(radius.CodeAccessRequest, []byte("testing123"))
		require.NoError(t, rfc2865.UserName_SetString(pkt, user))
		require.NoError(t, rfc2865.UserPassword_SetString(pkt, password))
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		resp, err := radius.Exchange(rctx, pkt, radiusAddr)
		require.NoError(t, err)
		return resp.Code
	}

	assert.Equal(t, radius.CodeAccessAccept, papCode("alice", "wonderland"))
	assert.Equal(t, radius.CodeAccessReject, papCode("bob", "can-we-fix-it"))

	hashed, err := credential.Hash("can-we-fix-it")
	require.NoError(t, err)
	writeUser(t, root, "bob", fmt.Sprintf("password: %q\ngroups: [users]\n", hashed))
	require.NoError(t, rt.Reload())

	assert.Equal(t, radius.CodeAccessAccept, papCode("bob", "can-we-fix-it"))
	require.NoError(t, conn.Bind("cn=bob,ou=users,dc=example,dc=org", "can-we-fix-it"))
}
