package ldap

import (
	"errors"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/concess/pkg/identity"
)

func TestBindAndSearch(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)

	require.NoError(t, conn.Bind(aliceDN, "wonderland"))

	res, err := conn.Search(subtree("(uid=alice)", "mail", "memberOf", "displayName"))
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	e := res.Entries[0]
	assert.Equal(t, aliceDN, e.DN)
	assert.Equal(t, "alice@example.org", e.GetAttributeValue("mail"))
	assert.Equal(t, "Alice Liddell", e.GetAttributeValue("displayName"))
	assert.ElementsMatch(t, []string{
		"cn=admins,ou=groups,dc=example,dc=org",
		"cn=users,ou=groups,dc=example,dc=org",
	}, e.GetAttributeValues("memberOf"))
}

func TestBindHashedCredentials(t *testing.T) {
	srv := startServerWithUsers(t, hashedUsers(t), identity.LDAPOptions{}, nil)
	carolDN := "cn=carol,ou=users,dc=example,dc=org"
	daveDN := "cn=dave,ou=users,dc=example,dc=org"

	tests := []struct {
		name     string
		bindName string
		password string
		wantDN   string
	}{
		{"Argon2id", carolDN, "queen-of-hearts", carolDN},
		{"Argon2idUid", "uid=carol,ou=users,dc=example,dc=org", "queen-of-hearts", carolDN},
		{"Bcrypt", daveDN, "white-rabbit", daveDN},
		{"BcryptPlainUsername", "dave", "white-rabbit", daveDN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := srv.dial(t)
			require.NoError(t, conn.Bind(tt.bindName, tt.password))

			who, err := conn.WhoAmI(nil)
			require.NoError(t, err)
			assert.Equal(t, "dn:"+tt.wantDN, who.AuthzID)
		})
	}

	conn := srv.dial(t)
	assert.Equal(t, uint16(goldap.LDAPResultInvalidCredentials), resultCode(t, conn.Bind(carolDN, "white-rabbit")))
	assert.Equal(t, uint16(goldap.LDAPResultInvalidCredentials), resultCode(t, conn.Bind("dave", "queen-of-hearts")))
}

func TestSearchGroups(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)
	require.NoError(t, conn.Bind("bob", "builder"))

	res, err := conn.Search(subtree("(&(objectClass=groupOfUniqueNames)(cn=users))", "uniqueMember"))
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.ElementsMatch(t, []string{
		aliceDN,
		"cn=bob,ou=users,dc=example,dc=org",
		"cn=eve,ou=users,dc=example,dc=org",
	}, res.Entries[0].GetAttributeValues("uniqueMember"))
}

func TestBindFailures(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)

	tests := []struct {
		name     string
		user     string
		password string
		code     uint16
	}{
		{"WrongPassword", aliceDN, "rabbit-hole", goldap.LDAPResultInvalidCredentials},
		{"UnknownUser", "cn=mallory,ou=users,dc=example,dc=org", "whatever", goldap.LDAPResultInvalidCredentials},
		{"DisabledUser", "eve", "intruder", goldap.LDAPResultInvalidCredentials},
		{"PasswordWithoutName", "", "wonderland", goldap.LDAPResultUnwillingToPerform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := srv.dial(t)
			err := conn.Bind(tt.user, tt.password)
			assert.Equal(t, tt.code, resultCode(t, err))
		})
	}
}

func TestUnauthenticatedBindRefused(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)

	err := conn.UnauthenticatedBind(aliceDN)
	assert.Equal(t, uint16(goldap.LDAPResultUnwillingToPerform), resultCode(t, err))
}

func TestAnonymousSearch(t *testing.T) {
	t.Run("RefusedByDefault", func(t *testing.T) {
		srv := startServer(t, identity.LDAPOptions{}, nil)
		conn := srv.dial(t)
		require.NoError(t, conn.UnauthenticatedBind(""))

		_, err := conn.Search(subtree("(objectClass=*)"))
		assert.Equal(t, uint16(goldap.LDAPResultInsufficientAccessRights), resultCode(t, err))
	})

	t.Run("RootDSEAlwaysReadable", func(t *testing.T) {
		srv := startServer(t, identity.LDAPOptions{}, nil)
		conn := srv.dial(t)

		res, err := conn.Search(goldap.NewSearchRequest("", goldap.ScopeBaseObject, goldap.NeverDerefAliases,
			0, 0, false, "(objectClass=*)", []string{"namingContexts", "supportedExtension"}, nil))
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, testBaseDN, res.Entries[0].GetAttributeValue("namingContexts"))
		assert.Equal(t, identity.OIDWhoAmI, res.Entries[0].GetAttributeValue("supportedExtension"))
	})

	t.Run("AllowedWhenConfigured", func(t *testing.T) {
		srv := startServer(t, identity.LDAPOptions{AllowAnonymousSearch: true}, nil)
		conn := srv.dial(t)

		res, err := conn.Search(subtree("(uid=bob)", "cn"))
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, "bob", res.Entries[0].GetAttributeValue("cn"))
	})
}

func TestFailedBindResetsSession(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)

	require.NoError(t, conn.Bind(aliceDN, "wonderland"))
	who, err := conn.WhoAmI(nil)
	require.NoError(t, err)
	assert.Equal(t, "dn:"+aliceDN, who.AuthzID)

	require.Error(t, conn.Bind(aliceDN, "wrong"))
	who, err = conn.WhoAmI(nil)
	require.NoError(t, err)
	assert.Empty(t, who.AuthzID)

	_, err = conn.Search(subtree("(uid=alice)"))
	assert.Equal(t, uint16(goldap.LDAPResultInsufficientAccessRights), resultCode(t, err))
}

func TestWhoAmIAnonymous(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)

	who, err := conn.WhoAmI(nil)
	require.NoError(t, err)
	assert.Empty(t, who.AuthzID)
}

func TestSearchResultCodes(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)
	require.NoError(t, conn.Bind("alice", "wonderland"))

	t.Run("UnsupportedFilter", func(t *testing.T) {
		_, err := conn.Search(subtree("(cn=ali*)"))
		assert.Equal(t, uint16(goldap.LDAPResultUnwillingToPerform), resultCode(t, err))
	})

	t.Run("NoSuchObject", func(t *testing.T) {
		_, err := conn.Search(goldap.NewSearchRequest("cn=nobody,ou=users,dc=example,dc=org",
			goldap.ScopeBaseObject, goldap.NeverDerefAliases, 0, 0, false, "(objectClass=*)", nil, nil))
		var lerr *goldap.Error
		require.True(t, errors.As(err, &lerr))
		assert.Equal(t, uint16(goldap.LDAPResultNoSuchObject), lerr.ResultCode)
		assert.Equal(t, "ou=users,dc=example,dc=org", lerr.MatchedDN)
	})

	t.Run("SizeLimit", func(t *testing.T) {
		req := subtree("(objectClass=inetOrgPerson)", "cn")
		req.SizeLimit = 2
		res, err := conn.Search(req)
		assert.Equal(t, uint16(goldap.LDAPResultSizeLimitExceeded), resultCode(t, err))
		require.NotNil(t, res)
		assert.Len(t, res.Entries, 2)
	})

	t.Run("CriticalControl", func(t *testing.T) {
		req := subtree("(uid=alice)")
		req.Controls = []goldap.Control{goldap.NewControlString("1.2.3.4.5", true, "")}
		_, err := conn.Search(req)
		assert.Equal(t, uint16(goldap.LDAPResultUnavailableCriticalExtension), resultCode(t, err))
	})

	t.Run("NonCriticalControlIgnored", func(t *testing.T) {
		req := subtree("(uid=alice)")
		req.Controls = []goldap.Control{goldap.NewControlString("1.2.3.4.5", false, "")}
		res, err := conn.Search(req)
		require.NoError(t, err)
		assert.Len(t, res.Entries, 1)
	})
}

func TestUpdatesRefused(t *testing.T) {
	srv := startServer(t, identity.LDAPOptions{}, nil)
	conn := srv.dial(t)
	require.NoError(t, conn.Bind(aliceDN, "wonderland"))

	err := conn.Del(goldap.NewDelRequest("cn=bob,ou=users,dc=example,dc=org", nil))
	assert.Equal(t, uint16(goldap.LDAPResultUnwillingToPerform), resultCode(t, err))

	add := goldap.NewAddRequest("cn=carol,ou=users,dc=example,dc=org", nil)
	add.Attribute("objectClass", []string{"inetOrgPerson"})
	err = conn.Add(add)
	assert.Equal(t, uint16(goldap.LDAPResultUnwillingToPerform), resultCode(t, err))

	_, err = conn.Compare(aliceDN, "mail", "alice@example.org")
	assert.Equal(t, uint16(goldap.LDAPResultUnwillingToPerform), resultCode(t, err))

	// The session survives the refusals.
	res, err := conn.Search(subtree("(uid=bob)"))
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
}

func TestMapError(t *testing.T) {
	a := &Adapter{}

	tests := []struct {
		name string
		err  error
		code uint32
	}{
		{"InvalidCredentials", identity.ErrInvalidCredentials, goldap.LDAPResultInvalidCredentials},
		{"NoSuchObject", &identity.NoSuchObjectError{BaseDN: "cn=x"}, goldap.LDAPResultNoSuchObject},
		{"UnsupportedFilter", identity.ErrUnsupportedFilter, goldap.LDAPResultUnwillingToPerform},
		{"SizeLimit", identity.ErrSizeLimitExceeded, goldap.LDAPResultSizeLimitExceeded},
		{"InsufficientAccess", identity.ErrInsufficientAccess, goldap.LDAPResultInsufficientAccessRights},
		{"InvalidDN", identity.ErrInvalidDN, goldap.LDAPResultInvalidDNSyntax},
		{"Other", errors.New("boom"), goldap.LDAPResultOperationsError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := a.MapError(tt.err)
			require.NotNil(t, perr)
			assert.Equal(t, tt.code, perr.Code())
			assert.ErrorIs(t, perr, tt.err)
		})
	}

	assert.Nil(t, a.MapError(nil))
	assert.Equal(t, "invalid credentials", a.MapError(identity.ErrInvalidCredentials).Message())
}
