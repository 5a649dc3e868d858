package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

const testBaseDN = "dc=example,dc=org"

// newTestStore writes records into a temp data dir and opens a store on it.
func newTestStore(t *testing.T, files map[string]string) *directory.Store {
	t.Helper()
	root := t.TempDir()
	users := directory.UsersPath(root)
	require.NoError(t, os.MkdirAll(users, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(users, name), []byte(content), 0o600))
	}
	s, err := directory.NewStore(root)
	require.NoError(t, err)
	return s
}

var fixtureUsers = map[string]string{
	"alice.yaml": `
password: "{CLEARTEXT}wonderland"
first_name: Alice
last_name: Liddell
mail: alice@example.org
groups: [admins, users]
attributes:
  Filter-Id: staff
  employeeNumber: "42"
  bad_name: ignored-by-ldap
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

func newTestLDAPView(t *testing.T, opts LDAPOptions) *LDAPView {
	t.Helper()
	if opts.BaseDN == "" {
		opts.BaseDN = testBaseDN
	}
	v, err := NewLDAPView(newTestStore(t, fixtureUsers), opts)
	require.NoError(t, err)
	return v
}

func dnStrings(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.DN.String()
	}
	return out
}

func removeUser(dataPath, username string) error {
	return os.Remove(filepath.Join(directory.UsersPath(dataPath), username+".yaml"))
}
