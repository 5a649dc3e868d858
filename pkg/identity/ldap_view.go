package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/marmos91/concess/pkg/credential"
	"github.com/marmos91/concess/pkg/directory"
)

// Well-known RDNs of the synthesized tree.
const (
	UsersOU  = "users"
	GroupsOU = "groups"
)

// OIDWhoAmI is the "Who am I?" extended operation (RFC 4532).
const OIDWhoAmI = "1.3.6.1.4.1.4203.1.11.3"

// Errors returned by LDAPView.Search.
var (
	ErrNoSuchObject       = errors.New("no such object")
	ErrUnsupportedFilter  = errors.New("unsupported filter")
	ErrSizeLimitExceeded  = errors.New("size limit exceeded")
	ErrInsufficientAccess = errors.New("insufficient access rights")
)

// NoSuchObjectError carries the closest existing ancestor of a missing base.
type NoSuchObjectError struct {
	BaseDN    string
	MatchedDN string
}

func (e *NoSuchObjectError) Error() string {
	return fmt.Sprintf("no such object: %s", e.BaseDN)
}

func (e *NoSuchObjectError) Is(target error) bool { return target == ErrNoSuchObject }

// Scope is an LDAP search scope. Values match the wire encoding.
type Scope int

const (
	ScopeBaseObject   Scope = 0
	ScopeSingleLevel  Scope = 1
	ScopeWholeSubtree Scope = 2
)

func (s Scope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// InScope reports whether dn is selected by a search rooted at base.
func InScope(dn, base DN, scope Scope) bool {
	switch scope {
	case ScopeBaseObject:
		return dn.Equal(base)
	case ScopeSingleLevel:
		return dn.Depth() == base.Depth()+1 && dn.IsDescendantOf(base)
	case ScopeWholeSubtree:
		return dn.IsWithin(base)
	default:
		return false
	}
}

// SearchRequest is a protocol-neutral search.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     Filter
	Attributes []string
	TypesOnly  bool
	SizeLimit  int // 0 means unlimited
}

// LDAPOptions configures the LDAP view.
type LDAPOptions struct {
	// BaseDN is the suffix of the tree, e.g. dc=example,dc=org.
	BaseDN string

	// AllowAnonymousSearch lets unbound sessions search.
	AllowAnonymousSearch bool

	// AllowUnsupportedFilters turns searches with unsupported filter
	// components into empty successful results instead of refusals.
	AllowUnsupportedFilters bool

	// VendorName is advertised in the Root DSE.
	VendorName string
}

// ldapTree is the synthesized tree of one snapshot.
type ldapTree struct {
	snap    *directory.Directory
	entries []*Entry // base, ou=users, ou=groups, users, groups
	byKey   map[string]*Entry
}

// LDAPView exposes the directory as an LDAP tree:
//
//	<base>
//	├── ou=users   cn=<username>  (inetOrgPerson)
//	└── ou=groups  cn=<group>     (groupOfUniqueNames)
type LDAPView struct {
	src      Source
	opts     LDAPOptions
	base     DN
	usersDN  DN
	groupsDN DN

	tree atomic.Pointer[ldapTree]
}

// NewLDAPView creates the LDAP view over src.
func NewLDAPView(src Source, opts LDAPOptions) (*LDAPView, error) {
	base, err := ParseDN(opts.BaseDN)
	if err != nil {
		return nil, err
	}
	if base.IsRoot() {
		return nil, fmt.Errorf("%w: base DN must not be empty", ErrInvalidDN)
	}
	if opts.VendorName == "" {
		opts.VendorName = "concess"
	}

	return &LDAPView{
		src:      src,
		opts:     opts,
		base:     base,
		usersDN:  base.Child("ou", UsersOU),
		groupsDN: base.Child("ou", GroupsOU),
	}, nil
}

// BaseDN returns the suffix of the tree.
func (v *LDAPView) BaseDN() DN { return v.base }

// AllowAnonymousSearch reports whether unbound sessions may search.
func (v *LDAPView) AllowAnonymousSearch() bool { return v.opts.AllowAnonymousSearch }

// UserDN returns the DN of a user entry.
func (v *LDAPView) UserDN(username string) DN { return v.usersDN.Child("cn", username) }

// GroupDN returns the DN of a group entry.
func (v *LDAPView) GroupDN(name string) DN { return v.groupsDN.Child("cn", name) }

// ResolveBindName maps a bind name onto a record. The name may be a user DN
// (cn= or uid= directly under ou=users) or a plain username.
func (v *LDAPView) ResolveBindName(snap *directory.Directory, name string) (*directory.Record, bool) {
	name = strings.TrimSpace(name)
	if !strings.Contains(name, "=") {
		return snap.LookupUserFold(name)
	}

	dn, err := ParseDN(name)
	if err != nil || !dn.Parent().Equal(v.usersDN) {
		return nil, false
	}
	typ, value, ok := dn.Leaf()
	if !ok {
		return nil, false
	}
	switch strings.ToLower(typ) {
	case "cn", "uid":
		return snap.LookupUserFold(value)
	default:
		return nil, false
	}
}

// Authenticate verifies a simple bind and returns the canonical DN of the
// bound user. Every failure is ErrInvalidCredentials, wrapped with the reason
// for logging.
func (v *LDAPView) Authenticate(_ context.Context, name, password string) (DN, error) {
	snap := v.src.Snapshot()

	rec, ok := v.ResolveBindName(snap, name)
	if !ok {
		return DN{}, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}
	if rec.Disabled {
		return DN{}, fmt.Errorf("%w: user disabled", ErrInvalidCredentials)
	}
	if !credential.Verify(rec.Credential, credential.Password(password)) {
		return DN{}, fmt.Errorf("%w: credential mismatch", ErrInvalidCredentials)
	}
	return v.UserDN(rec.Username), nil
}

// RootDSE returns the server's root entry (RFC 4512 section 5.1).
func (v *LDAPView) RootDSE() *Entry {
	return newEntryBuilder(DN{}).
		add("objectClass", "top").
		add("namingContexts", v.base.String()).
		add("supportedLDAPVersion", "3").
		add("supportedExtension", OIDWhoAmI).
		add("vendorName", v.opts.VendorName).
		build()
}

// Search evaluates req against the tree of the active snapshot.
//
// Returns:
//   - entries: Matching entries, projected onto the requested attributes
//   - error: ErrUnsupportedFilter, *NoSuchObjectError, ErrInvalidDN, or
//     ErrSizeLimitExceeded (returned together with the truncated entries)
func (v *LDAPView) Search(_ context.Context, req SearchRequest) ([]*Entry, error) {
	if req.Filter == nil {
		return nil, fmt.Errorf("%w: missing filter", ErrUnsupportedFilter)
	}
	if !IsSupported(req.Filter) {
		if v.opts.AllowUnsupportedFilters {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, req.Filter)
	}

	base, err := ParseDN(req.BaseDN)
	if err != nil {
		return nil, err
	}

	if base.IsRoot() && req.Scope == ScopeBaseObject {
		dse := v.RootDSE()
		if !Match(dse, req.Filter) {
			return nil, nil
		}
		return []*Entry{project(dse, req)}, nil
	}

	tree := v.currentTree()
	if _, exists := tree.byKey[base.Key()]; !exists && !v.base.IsWithin(base) {
		return nil, &NoSuchObjectError{BaseDN: req.BaseDN, MatchedDN: v.matchedDN(tree, base)}
	}

	var out []*Entry
	for _, e := range tree.entries {
		if !InScope(e.DN, base, req.Scope) || !Match(e, req.Filter) {
			continue
		}
		if req.SizeLimit > 0 && len(out) >= req.SizeLimit {
			return out, ErrSizeLimitExceeded
		}
		out = append(out, project(e, req))
	}
	return out, nil
}

// matchedDN returns the deepest existing ancestor of a missing base.
func (v *LDAPView) matchedDN(tree *ldapTree, base DN) string {
	for d := base.Parent(); !d.IsRoot(); d = d.Parent() {
		if e, ok := tree.byKey[d.Key()]; ok {
			return e.DN.String()
		}
	}
	return ""
}

// currentTree returns the tree for the active snapshot, building it once per
// snapshot.
func (v *LDAPView) currentTree() *ldapTree {
	snap := v.src.Snapshot()
	if t := v.tree.Load(); t != nil && t.snap == snap {
		return t
	}
	t := v.buildTree(snap)
	v.tree.Store(t)
	return t
}

func (v *LDAPView) buildTree(snap *directory.Directory) *ldapTree {
	t := &ldapTree{
		snap:  snap,
		byKey: make(map[string]*Entry, snap.UserCount()+snap.GroupCount()+3),
	}
	addEntry := func(e *Entry) {
		t.entries = append(t.entries, e)
		t.byKey[e.DN.Key()] = e
	}

	addEntry(v.baseEntry())
	addEntry(ouEntry(v.usersDN, UsersOU))
	addEntry(ouEntry(v.groupsDN, GroupsOU))

	for _, rec := range snap.Users() {
		addEntry(v.userEntry(rec))
	}
	for _, g := range snap.Groups() {
		addEntry(v.groupEntry(g))
	}
	return t
}

func (v *LDAPView) baseEntry() *Entry {
	b := newEntryBuilder(v.base)
	typ, value, _ := v.base.Leaf()
	switch strings.ToLower(typ) {
	case "dc":
		b.add("objectClass", "top", "domain", "dcObject")
	case "o":
		b.add("objectClass", "top", "organization")
	case "ou":
		b.add("objectClass", "top", "organizationalUnit")
	default:
		b.add("objectClass", "top", "extensibleObject")
	}
	if typ != "" {
		b.add(typ, value)
	}
	return b.add("entryDN", v.base.String()).build()
}

func ouEntry(dn DN, name string) *Entry {
	return newEntryBuilder(dn).
		add("objectClass", "top", "organizationalUnit").
		add("ou", name).
		add("entryDN", dn.String()).
		build()
}

func (v *LDAPView) userEntry(rec *directory.Record) *Entry {
	dn := v.UserDN(rec.Username)

	memberOf := make([]string, 0, len(rec.Groups))
	for _, g := range rec.Groups {
		memberOf = append(memberOf, v.GroupDN(g).String())
	}

	sn := rec.LastName
	if sn == "" {
		sn = rec.Username
	}

	b := newEntryBuilder(dn).
		add("objectClass", "inetOrgPerson", "organizationalPerson", "person", "top").
		add("cn", rec.Username).
		add("uid", rec.Username).
		add("displayName", rec.Name()).
		add("givenName", rec.FirstName).
		add("sn", sn).
		add("mail", rec.Mail).
		add("memberOf", memberOf...).
		add("entryDN", dn.String())

	for _, name := range sortedKeys(rec.Attributes) {
		if isDescriptor(name) {
			b.add(name, rec.Attributes[name]...)
		}
	}
	return b.build()
}

func (v *LDAPView) groupEntry(g *directory.Group) *Entry {
	dn := v.GroupDN(g.Name)

	members := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, v.UserDN(m).String())
	}

	return newEntryBuilder(dn).
		add("objectClass", "groupOfUniqueNames", "top").
		add("cn", g.Name).
		add("uniqueMember", members...).
		add("entryDN", dn.String()).
		build()
}

// operational attributes are only returned when asked for by name or "+".
var operational = map[string]bool{
	"entrydn": true,
}

// project applies the requested attribute list and typesOnly flag
// (RFC 4511 section 4.5.1.8).
func project(e *Entry, req SearchRequest) *Entry {
	all, allOperational, none := len(req.Attributes) == 0, false, false
	wanted := make(map[string]bool, len(req.Attributes))
	for _, a := range req.Attributes {
		switch a = strings.TrimSpace(a); a {
		case "*":
			all = true
		case "+":
			allOperational = true
		case "1.1":
			none = true
		default:
			wanted[canonicalAttr(a)] = true
		}
	}
	if none && !all && !allOperational && len(wanted) == 0 {
		return &Entry{DN: e.DN}
	}

	out := &Entry{DN: e.DN, Attributes: make([]Attribute, 0, len(e.Attributes))}
	for _, a := range e.Attributes {
		key := canonicalAttr(a.Name)
		include := wanted[key]
		if operational[key] {
			include = include || allOperational
		} else {
			include = include || all
		}
		if !include {
			continue
		}
		if req.TypesOnly {
			out.Attributes = append(out.Attributes, Attribute{Name: a.Name})
		} else {
			out.Attributes = append(out.Attributes, a)
		}
	}
	return out
}

// isDescriptor reports whether name is a valid LDAP attribute descriptor
// (RFC 4512 section 1.4: ALPHA *( ALPHA / DIGIT / HYPHEN )).
func isDescriptor(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '-'):
		default:
			return false
		}
	}
	return true
}
