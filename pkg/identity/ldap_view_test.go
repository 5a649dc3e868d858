package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLDAPViewRejectsBadBase(t *testing.T) {
	s := newTestStore(t, fixtureUsers)

	_, err := NewLDAPView(s, LDAPOptions{BaseDN: ""})
	assert.ErrorIs(t, err, ErrInvalidDN)

	_, err = NewLDAPView(s, LDAPOptions{BaseDN: "garbage"})
	assert.ErrorIs(t, err, ErrInvalidDN)
}

func TestLDAPAuthenticate(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})
	ctx := context.Background()

	tests := []struct {
		name     string
		bindName string
		password string
		wantDN   string
		wantErr  bool
	}{
		{"UserDN", "cn=alice,ou=users,dc=example,dc=org", "wonderland", "cn=alice,ou=users,dc=example,dc=org", false},
		{"UidDN", "uid=alice,ou=users,dc=example,dc=org", "wonderland", "cn=alice,ou=users,dc=example,dc=org", false},
		{"CaseInsensitiveDN", "CN=Alice,OU=Users,DC=Example,DC=Org", "wonderland", "cn=alice,ou=users,dc=example,dc=org", false},
		{"PlainUsername", "bob", "builder", "cn=bob,ou=users,dc=example,dc=org", false},
		{"WrongPassword", "alice", "looking-glass", "", true},
		{"UnknownUser", "mallory", "x", "", true},
		{"DisabledUser", "eve", "intruder", "", true},
		{"WrongBranch", "cn=alice,ou=groups,dc=example,dc=org", "wonderland", "", true},
		{"WrongRDNType", "mail=alice,ou=users,dc=example,dc=org", "wonderland", "", true},
		{"OtherSuffix", "cn=alice,ou=users,dc=other,dc=org", "wonderland", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dn, err := v.Authenticate(ctx, tt.bindName, tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDN, dn.String())
		})
	}
}

func TestLDAPAuthenticateHashedCredentials(t *testing.T) {
	v, err := NewLDAPView(newTestStore(t, hashedUsers(t)), LDAPOptions{BaseDN: testBaseDN})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name     string
		bindName string
		password string
		wantDN   string
		wantErr  bool
	}{
		{"Argon2idUserDN", "cn=carol,ou=users,dc=example,dc=org", "queen-of-hearts", "cn=carol,ou=users,dc=example,dc=org", false},
		{"Argon2idSpacedMixedCaseDN", "CN=Carol, OU=Users, DC=Example, DC=Org", "queen-of-hearts", "cn=carol,ou=users,dc=example,dc=org", false},
		{"Argon2idUidDN", "uid=carol,ou=users,dc=example,dc=org", "queen-of-hearts", "cn=carol,ou=users,dc=example,dc=org", false},
		{"Argon2idPlainUsername", "carol", "queen-of-hearts", "cn=carol,ou=users,dc=example,dc=org", false},
		{"BcryptUserDN", "cn=dave,ou=users,dc=example,dc=org", "white-rabbit", "cn=dave,ou=users,dc=example,dc=org", false},
		{"BcryptPlainUsername", "dave", "white-rabbit", "cn=dave,ou=users,dc=example,dc=org", false},
		{"Argon2idWrongPassword", "carol", "white-rabbit", "", true},
		{"BcryptWrongPassword", "dave", "queen-of-hearts", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dn, err := v.Authenticate(ctx, tt.bindName, tt.password)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDN, dn.String())
		})
	}
}

func TestLDAPSearchUsername(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})

	entries, err := v.Search(context.Background(), SearchRequest{
		BaseDN: testBaseDN,
		Scope:  ScopeWholeSubtree,
		Filter: Equality{Attr: "username", Value: "alice"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	alice := entries[0]
	assert.Equal(t, "cn=alice,ou=users,dc=example,dc=org", alice.DN.String())
	assert.Equal(t, []string{"cn=admins,ou=groups,dc=example,dc=org", "cn=users,ou=groups,dc=example,dc=org"}, alice.Get("memberOf"))
	assert.Equal(t, []string{"Alice Liddell"}, alice.Get("displayName"))
	assert.Equal(t, []string{"Alice"}, alice.Get("givenName"))
	assert.Equal(t, []string{"Liddell"}, alice.Get("sn"))
	assert.Equal(t, []string{"alice@example.org"}, alice.Get("mail"))
	assert.Equal(t, []string{"inetOrgPerson", "organizationalPerson", "person", "top"}, alice.Get("objectClass"))

	t.Run("ExtraAttributes", func(t *testing.T) {
		assert.Equal(t, []string{"42"}, alice.Get("employeeNumber"))
		assert.Equal(t, []string{"staff"}, alice.Get("filter-id"))
		assert.Nil(t, alice.Get("bad_name"))
	})

	t.Run("OperationalHiddenByDefault", func(t *testing.T) {
		assert.Nil(t, alice.Get("entryDN"))
	})
}

func TestLDAPSearchGroups(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})
	ctx := context.Background()

	t.Run("GroupEntry", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{
			BaseDN: "ou=groups," + testBaseDN,
			Scope:  ScopeSingleLevel,
			Filter: Equality{Attr: "cn", Value: "admins"},
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []string{"cn=alice,ou=users,dc=example,dc=org"}, entries[0].Get("uniqueMember"))
		assert.Equal(t, []string{"groupOfUniqueNames", "top"}, entries[0].Get("objectClass"))
	})

	t.Run("MembershipFilter", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{
			BaseDN: testBaseDN,
			Scope:  ScopeWholeSubtree,
			Filter: And{
				Equality{Attr: "objectClass", Value: "groupOfUniqueNames"},
				Equality{Attr: "uniqueMember", Value: "cn=bob,ou=users," + testBaseDN},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"cn=users,ou=groups,dc=example,dc=org"}, dnStrings(entries))
	})

	t.Run("MembersOfGroup", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{
			BaseDN: "ou=users," + testBaseDN,
			Scope:  ScopeSingleLevel,
			Filter: Equality{Attr: "memberOf", Value: "cn=users,ou=groups," + testBaseDN},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"cn=alice,ou=users,dc=example,dc=org",
			"cn=bob,ou=users,dc=example,dc=org",
			"cn=eve,ou=users,dc=example,dc=org",
		}, dnStrings(entries))
	})
}

func TestLDAPSearchScopes(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})
	ctx := context.Background()
	all := Present{Attr: "objectClass"}

	t.Run("BaseObject", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{BaseDN: testBaseDN, Scope: ScopeBaseObject, Filter: all})
		require.NoError(t, err)
		assert.Equal(t, []string{testBaseDN}, dnStrings(entries))
		assert.Equal(t, []string{"example"}, entries[0].Get("dc"))
	})

	t.Run("SingleLevel", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{BaseDN: testBaseDN, Scope: ScopeSingleLevel, Filter: all})
		require.NoError(t, err)
		assert.Equal(t, []string{"ou=users," + testBaseDN, "ou=groups," + testBaseDN}, dnStrings(entries))
	})

	t.Run("WholeSubtree", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{BaseDN: testBaseDN, Scope: ScopeWholeSubtree, Filter: all})
		require.NoError(t, err)
		// base + 2 OUs + 3 users + 2 groups
		assert.Len(t, entries, 8)
	})

	t.Run("AncestorOfSuffix", func(t *testing.T) {
		entries, err := v.Search(ctx, SearchRequest{BaseDN: "dc=org", Scope: ScopeWholeSubtree, Filter: Equality{Attr: "uid", Value: "bob"}})
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("NoSuchObject", func(t *testing.T) {
		_, err := v.Search(ctx, SearchRequest{BaseDN: "cn=mallory,ou=users," + testBaseDN, Scope: ScopeBaseObject, Filter: all})
		require.ErrorIs(t, err, ErrNoSuchObject)
		var nso *NoSuchObjectError
		require.ErrorAs(t, err, &nso)
		assert.Equal(t, "ou=users,"+testBaseDN, nso.MatchedDN)
	})

	t.Run("OutsideTree", func(t *testing.T) {
		_, err := v.Search(ctx, SearchRequest{BaseDN: "dc=other,dc=com", Scope: ScopeWholeSubtree, Filter: all})
		require.ErrorIs(t, err, ErrNoSuchObject)
	})

	t.Run("InvalidBase", func(t *testing.T) {
		_, err := v.Search(ctx, SearchRequest{BaseDN: "garbage", Scope: ScopeWholeSubtree, Filter: all})
		assert.ErrorIs(t, err, ErrInvalidDN)
	})
}

func TestLDAPSearchRootDSE(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})

	entries, err := v.Search(context.Background(), SearchRequest{
		Scope:  ScopeBaseObject,
		Filter: Present{Attr: "objectClass"},
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].DN.IsRoot())
	assert.Equal(t, []string{testBaseDN}, entries[0].Get("namingContexts"))
	assert.Equal(t, []string{"3"}, entries[0].Get("supportedLDAPVersion"))
	assert.Equal(t, []string{OIDWhoAmI}, entries[0].Get("supportedExtension"))
}

func TestLDAPSearchUnsupportedFilter(t *testing.T) {
	req := SearchRequest{
		BaseDN: testBaseDN,
		Scope:  ScopeWholeSubtree,
		Filter: Or{Equality{Attr: "uid", Value: "alice"}, Unsupported{Kind: "substrings", Attr: "cn"}},
	}

	t.Run("Refused", func(t *testing.T) {
		v := newTestLDAPView(t, LDAPOptions{})
		_, err := v.Search(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnsupportedFilter)
	})

	t.Run("PermissiveReturnsEmpty", func(t *testing.T) {
		v := newTestLDAPView(t, LDAPOptions{AllowUnsupportedFilters: true})
		entries, err := v.Search(context.Background(), req)
		assert.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLDAPSearchAttributeSelection(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})
	ctx := context.Background()
	search := func(attrs []string, typesOnly bool) *Entry {
		t.Helper()
		entries, err := v.Search(ctx, SearchRequest{
			BaseDN:     testBaseDN,
			Scope:      ScopeWholeSubtree,
			Filter:     Equality{Attr: "uid", Value: "alice"},
			Attributes: attrs,
			TypesOnly:  typesOnly,
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		return entries[0]
	}

	t.Run("Named", func(t *testing.T) {
		e := search([]string{"MAIL", "username"}, false)
		require.Len(t, e.Attributes, 2)
		assert.Equal(t, "uid", e.Attributes[0].Name)
		assert.Equal(t, "mail", e.Attributes[1].Name)
	})

	t.Run("NoAttributes", func(t *testing.T) {
		e := search([]string{"1.1"}, false)
		assert.Empty(t, e.Attributes)
	})

	t.Run("Operational", func(t *testing.T) {
		e := search([]string{"+"}, false)
		require.Len(t, e.Attributes, 1)
		assert.Equal(t, []string{"cn=alice,ou=users,dc=example,dc=org"}, e.Get("entryDN"))

		e = search([]string{"*", "+"}, false)
		assert.True(t, e.Has("entryDN"))
		assert.True(t, e.Has("mail"))
	})

	t.Run("TypesOnly", func(t *testing.T) {
		e := search([]string{"mail", "cn"}, true)
		require.Len(t, e.Attributes, 2)
		for _, a := range e.Attributes {
			assert.Empty(t, a.Values)
		}
	})
}

func TestLDAPSearchSizeLimit(t *testing.T) {
	v := newTestLDAPView(t, LDAPOptions{})

	entries, err := v.Search(context.Background(), SearchRequest{
		BaseDN:    "ou=users," + testBaseDN,
		Scope:     ScopeSingleLevel,
		Filter:    Present{Attr: "uid"},
		SizeLimit: 2,
	})
	assert.ErrorIs(t, err, ErrSizeLimitExceeded)
	assert.Len(t, entries, 2)
}

func TestLDAPTreeFollowsReload(t *testing.T) {
	s := newTestStore(t, fixtureUsers)
	v, err := NewLDAPView(s, LDAPOptions{BaseDN: testBaseDN})
	require.NoError(t, err)
	ctx := context.Background()

	req := SearchRequest{BaseDN: testBaseDN, Scope: ScopeWholeSubtree, Filter: Equality{Attr: "cn", Value: "admins"}}
	entries, err := v.Search(ctx, req)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, removeUser(s.Path(), "alice"))
	require.NoError(t, s.Reload())

	entries, err = v.Search(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
