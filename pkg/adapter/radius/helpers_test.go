package radius

import (
	"context"
	"crypto/md5"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"layeh.com/radius"
	"layeh.com/radius/rfc2865"

	radiuswire "github.com/marmos91/concess/internal/protocol/radius"
	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
	"github.com/marmos91/concess/pkg/identity"
)

const testSecret = "testing123"

var testUsers = map[string]string{
	"alice.yaml": `
password: "{CLEARTEXT}wonderland"
groups: [admins, users]
attributes:
  Filter-Id: staff
  Session-Timeout: "3600"
  jpegPhoto: ignored
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
func startServer(t *testing.T, configure func(*Config)) *testServer {
	t.Helper()
	return startServerWithUsers(t, testUsers, configure)
}

func startServerWithUsers(t *testing.T, files map[string]string, configure func(*Config)) *testServer {
	t.Helper()

	root := t.TempDir()
	users := directory.UsersPath(root)
	require.NoError(t, os.MkdirAll(users, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(users, name), []byte(content), 0o600))
	}
	store, err := directory.NewStore(root)
	require.NoError(t, err)

	cfg := Config{
		Enabled:         true,
		BindAddress:     "127.0.0.1",
		Secret:          testSecret,
		Workers:         2,
		ShutdownTimeout: 2 * time.Second,
	}
	if configure != nil {
		configure(&cfg)
	}

	view := identity.NewRADIUSView(store, identity.RADIUSOptions{
		GroupAttribute: cfg.GroupAttribute,
		RequiredGroups: cfg.RequiredGroups,
	})

	a, err := New(cfg, view)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	addr := a.GetListenerAddr()
	require.NotEmpty(t, addr, "socket did not bind")

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

// exchange sends raw and returns the response, or nil when the server stays
// silent.
func (s *testServer) exchange(t *testing.T, raw []byte) []byte {
	t.Helper()

	conn, err := net.Dial("udp", s.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(raw)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	buf := make([]byte, radiuswire.MaxPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		var nerr net.Error
		require.ErrorAs(t, err, &nerr)
		require.True(t, nerr.Timeout(), "unexpected read error: %v", err)
		return nil
	}
	return buf[:n]
}

// papRequest builds a signed Access-Request with a User-Password.
func papRequest(t *testing.T, secret, username, password string) []byte {
	t.Helper()
	p := radius.New(radius.CodeAccessRequest, []byte(secret))
	require.NoError(t, rfc2865.UserName_SetString(p, username))
	require.NoError(t, rfc2865.UserPassword_SetString(p, password))
	raw, err := radiuswire.SignRequest(p)
	require.NoError(t, err)
	return raw
}

// chapResponse computes MD5(id || password || challenge).
func chapResponse(id byte, password string, challenge []byte) []byte {
	h := md5.New()
	h.Write([]byte{id})
	h.Write([]byte(password))
	h.Write(challenge)
	return h.Sum(nil)
}

// attributeValues walks the attributes of an encoded packet.
func attributeValues(t *testing.T, raw []byte, typ radius.Type) []string {
	t.Helper()
	var values []string
	for off := 20; off+2 <= len(raw); {
		length := int(raw[off+1])
		require.GreaterOrEqual(t, length, 2)
		require.LessOrEqual(t, off+length, len(raw))
		if radius.Type(raw[off]) == typ {
			values = append(values, string(raw[off+2:off+length]))
		}
		off += length
	}
	return values
}

// requireResponse checks the response is authentic for req and returns its
// code.
func requireResponse(t *testing.T, resp, req []byte, secret string) radius.Code {
	t.Helper()
	require.NotNil(t, resp, "expected a response")
	require.True(t, radius.IsAuthenticResponse(resp, req, []byte(secret)), "response authenticator does not verify")
	return radius.Code(resp[0])
}
