// Package directory loads per-user YAML records into immutable snapshots and
// derives group membership from them.
//
// A Directory is never modified after it is built. The Store publishes
// snapshots through an atomic pointer, so readers take no locks and a reader
// holding an old snapshot keeps a consistent view until it lets go of it.
package directory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Group is derived from the records that list it. It has at least one member
// by construction.
type Group struct {
	Name    string
	Members []string // sorted usernames
}

// Directory is an immutable snapshot of all loaded users and derived groups.
type Directory struct {
	path     string
	loadedAt time.Time
	digest   string

	users     map[string]*Record
	usersFold map[string]*Record
	usernames []string

	groups     map[string]*Group
	groupsFold map[string]*Group
	groupNames []string
}

// newDirectory indexes records and derives groups. Records must already have
// unique usernames.
func newDirectory(path string, records []*Record) *Directory {
	d := &Directory{
		path:       path,
		loadedAt:   time.Now(),
		users:      make(map[string]*Record, len(records)),
		usersFold:  make(map[string]*Record, len(records)),
		usernames:  make([]string, 0, len(records)),
		groups:     make(map[string]*Group),
		groupsFold: make(map[string]*Group),
	}

	for _, r := range records {
		d.users[r.Username] = r
		d.usersFold[strings.ToLower(r.Username)] = r
		d.usernames = append(d.usernames, r.Username)

		for _, name := range r.Groups {
			g, ok := d.groups[name]
			if !ok {
				g = &Group{Name: name}
				d.groups[name] = g
				d.groupsFold[strings.ToLower(name)] = g
				d.groupNames = append(d.groupNames, name)
			}
			g.Members = append(g.Members, r.Username)
		}
	}

	slices.Sort(d.usernames)
	slices.Sort(d.groupNames)
	for _, g := range d.groups {
		slices.Sort(g.Members)
	}

	d.digest = digestOf(d)
	return d
}

// digestOf hashes the canonical content of a directory. encoding/json sorts
// map keys, so equal content yields equal digests.
func digestOf(d *Directory) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, name := range d.usernames {
		_ = enc.Encode(d.users[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Path returns the data directory the snapshot was loaded from.
func (d *Directory) Path() string { return d.path }

// LoadedAt returns when the snapshot was built.
func (d *Directory) LoadedAt() time.Time { return d.loadedAt }

// Digest returns a content hash of the snapshot.
func (d *Directory) Digest() string { return d.digest }

// Equal reports whether two snapshots hold identical records.
func (d *Directory) Equal(other *Directory) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.digest == other.digest
}

// LookupUser returns the record for an exact username.
func (d *Directory) LookupUser(name string) (*Record, bool) {
	r, ok := d.users[name]
	return r, ok
}

// LookupUserFold returns the record for a username compared case-insensitively.
func (d *Directory) LookupUserFold(name string) (*Record, bool) {
	r, ok := d.usersFold[strings.ToLower(name)]
	return r, ok
}

// GroupsOf returns the sorted group names listed by the user, or nil for an
// unknown user.
func (d *Directory) GroupsOf(name string) []string {
	r, ok := d.users[name]
	if !ok {
		return nil
	}
	return slices.Clone(r.Groups)
}

// LookupGroup returns a group by exact name.
func (d *Directory) LookupGroup(name string) (*Group, bool) {
	g, ok := d.groups[name]
	return g, ok
}

// LookupGroupFold returns a group by name compared case-insensitively.
func (d *Directory) LookupGroupFold(name string) (*Group, bool) {
	g, ok := d.groupsFold[strings.ToLower(name)]
	return g, ok
}

// MembersOf returns the sorted usernames in group, or nil if no user lists it.
func (d *Directory) MembersOf(group string) []string {
	g, ok := d.groups[group]
	if !ok {
		return nil
	}
	return slices.Clone(g.Members)
}

// Users returns all records sorted by username.
func (d *Directory) Users() []*Record {
	out := make([]*Record, 0, len(d.usernames))
	for _, name := range d.usernames {
		out = append(out, d.users[name])
	}
	return out
}

// Groups returns all derived groups sorted by name.
func (d *Directory) Groups() []*Group {
	out := make([]*Group, 0, len(d.groupNames))
	for _, name := range d.groupNames {
		out = append(out, d.groups[name])
	}
	return out
}

// GroupNames returns the sorted names of all derived groups.
func (d *Directory) GroupNames() []string {
	return slices.Clone(d.groupNames)
}

// UserCount returns the number of loaded users.
func (d *Directory) UserCount() int { return len(d.usernames) }

// GroupCount returns the number of derived groups.
func (d *Directory) GroupCount() int { return len(d.groupNames) }
