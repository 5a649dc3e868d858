package identity

import "strings"

// Attribute is one LDAP attribute with its values in presentation order.
type Attribute struct {
	Name   string
	Values []string
}

// Entry is a node of the synthesized LDAP tree.
type Entry struct {
	DN         DN
	Attributes []Attribute
}

// attributeAliases maps accepted alternative names onto canonical ones.
var attributeAliases = map[string]string{
	"username": "uid",
}

// dnValued lists attributes whose values are DNs and compare as DNs.
var dnValued = map[string]bool{
	"entrydn":           true,
	"memberof":          true,
	"uniquemember":      true,
	"namingcontexts":    true,
	"subschemasubentry": true,
}

// canonicalAttr folds an attribute name and resolves aliases.
func canonicalAttr(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := attributeAliases[n]; ok {
		return alias
	}
	return n
}

// Get returns the values of an attribute, matched case-insensitively and
// through aliases.
func (e *Entry) Get(name string) []string {
	want := canonicalAttr(name)
	for _, a := range e.Attributes {
		if canonicalAttr(a.Name) == want {
			return a.Values
		}
	}
	return nil
}

// Has reports whether the entry holds the attribute with at least one value.
func (e *Entry) Has(name string) bool {
	return len(e.Get(name)) > 0
}

// entryBuilder accumulates attributes in insertion order, skipping empty
// values and names already present.
type entryBuilder struct {
	entry *Entry
	seen  map[string]bool
}

func newEntryBuilder(dn DN) *entryBuilder {
	return &entryBuilder{entry: &Entry{DN: dn}, seen: make(map[string]bool)}
}

func (b *entryBuilder) add(name string, values ...string) *entryBuilder {
	key := canonicalAttr(name)
	if b.seen[key] {
		return b
	}
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return b
	}
	b.seen[key] = true
	b.entry.Attributes = append(b.entry.Attributes, Attribute{Name: name, Values: kept})
	return b
}

func (b *entryBuilder) build() *Entry {
	return b.entry
}
