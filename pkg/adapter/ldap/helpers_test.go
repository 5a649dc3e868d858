package ldap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
	"github.com/marmos91/concess/pkg/identity"
)

const (
	testBaseDN = "dc=example,dc=org"
	aliceDN    = "cn=alice,ou=users,dc=example,dc=org"
)

var testUsers = map[string]string{
	"alice.yaml": `
password: "{CLEARTEXT}wonderland"
first_name: Alice
last_name: Liddell
mail: alice@example.org
groups: [admins, users]
`,
	"bob.yaml": `
password: "{CLEARTEXT}builder"
groups: [users]
`,
	"eve.yaml": `
password: "{CLEARTEXT}intruder"
disabled: true
groups: [users]
`,
}

type testServer struct {
	adapter *Adapter
	addr    string
}

// hashedUsers returns records whose credentials are stored hashed: carol
// with argon2id and dave with bcrypt.
func hashedUsers(t *testing.T) map[string]string {
	t.Helper()
	argon, err := credential.Hash("queen-of-hearts")
	require.NoError(t, err)
	bc, err := credential.HashBcrypt("white-rabbit", bcrypt.MinCost)
	require.NoError(t, err)
	return map[string]string{
		"carol.yaml": fmt.Sprintf("password: %q\ngroups: [admins]\n", argon),
		"dave.yaml":  fmt.Sprintf("password: %q\ngroups: [users]\n", bc),
	}
}

// startServer runs an adapter over testUsers on a loopback port until the
// test ends.
func startServer(t *testing.T, opts identity.LDAPOptions, configure func(*Config)) *testServer {
	t.Helper()
	return startServerWithUsers(t, testUsers, opts, configure)
}

func startServerWithUsers(t *testing.T, files map[string]string, opts identity.LDAPOptions, configure func(*Config)) *testServer {
	t.Helper()

	root := t.TempDir()
	users := directory.UsersPath(root)
	require.NoError(t, os.MkdirAll(users, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(users, name), []byte(content), 0o600))
	}
	store, err := directory.NewStore(root)
	require.NoError(t, err)

	opts.BaseDN = testBaseDN
	view, err := identity.NewLDAPView(store, opts)
	require.NoError(t, err)

	cfg := Config{
		Enabled:         true,
		BindAddress:     "127.0.0.1",
		BaseDN:          testBaseDN,
		ShutdownTimeout: 2 * time.Second,
	}
	if configure != nil {
		configure(&cfg)
	}

	a, err := New(cfg, view)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	addr := a.GetListenerAddr()
	require.NotEmpty(t, addr, "listener did not bind")

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})

	return &testServer{adapter: a, addr: addr}
}

func (s *testServer) dial(t *testing.T) *goldap.Conn {
	t.Helper()
	conn, err := goldap.DialURL("ldap://" + s.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subtree(filter string, attrs ...string) *goldap.SearchRequest {
	return goldap.NewSearchRequest(testBaseDN, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
		0, 0, false, filter, attrs, nil)
}

func resultCode(t *testing.T, err error) uint16 {
	t.Helper()
	require.Error(t, err)
	var lerr *goldap.Error
	require.ErrorAs(t, err, &lerr)
	return lerr.ResultCode
}
