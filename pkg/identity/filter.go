package identity

import (
	"fmt"
	"strings"
)

// Filter is a decoded LDAP search filter (RFC 4511 section 4.5.1.7).
type Filter interface {
	// String renders the filter in RFC 4515 form for logging.
	String() string
}

// And matches when every sub-filter matches. An empty And is absolute true.
type And []Filter

// Or matches when any sub-filter matches. An empty Or is absolute false.
type Or []Filter

// Not negates its sub-filter.
type Not struct {
	Filter Filter
}

// Equality matches an attribute value. On memberOf and uniqueMember it acts
// as the group membership filter.
type Equality struct {
	Attr  string
	Value string
}

// Present matches entries holding the attribute.
type Present struct {
	Attr string
}

// Unsupported stands for a filter choice this server does not evaluate
// (substrings, ordering, approximate and extensible matches).
type Unsupported struct {
	Kind string
	Attr string
}

func (f And) String() string { return "(&" + joinFilters(f) + ")" }
func (f Or) String() string  { return "(|" + joinFilters(f) + ")" }
func (f Not) String() string {
	if f.Filter == nil {
		return "(!)"
	}
	return "(!" + f.Filter.String() + ")"
}
func (f Equality) String() string { return fmt.Sprintf("(%s=%s)", f.Attr, escapeFilterValue(f.Value)) }
func (f Present) String() string  { return fmt.Sprintf("(%s=*)", f.Attr) }
func (f Unsupported) String() string {
	return fmt.Sprintf("(%s:%s)", f.Attr, f.Kind)
}

func joinFilters(fs []Filter) string {
	var b strings.Builder
	for _, f := range fs {
		if f != nil {
			b.WriteString(f.String())
		}
	}
	return b.String()
}

func escapeFilterValue(v string) string {
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '*', '(', ')', '\\', 0:
			fmt.Fprintf(&b, `\%02x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IsSupported reports whether every component of f can be evaluated.
func IsSupported(f Filter) bool {
	switch f := f.(type) {
	case And:
		for _, sub := range f {
			if !IsSupported(sub) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range f {
			if !IsSupported(sub) {
				return false
			}
		}
		return true
	case Not:
		return f.Filter != nil && IsSupported(f.Filter)
	case Equality, Present:
		return true
	default:
		return false
	}
}

// Match evaluates a supported filter against an entry. Unsupported
// components never match.
func Match(e *Entry, f Filter) bool {
	switch f := f.(type) {
	case And:
		for _, sub := range f {
			if !Match(e, sub) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range f {
			if Match(e, sub) {
				return true
			}
		}
		return false
	case Not:
		return f.Filter != nil && !Match(e, f.Filter)
	case Present:
		return e.Has(f.Attr)
	case Equality:
		return matchEquality(e, f)
	default:
		return false
	}
}

func matchEquality(e *Entry, f Equality) bool {
	values := e.Get(f.Attr)
	if len(values) == 0 {
		return false
	}

	if dnValued[canonicalAttr(f.Attr)] {
		want, err := ParseDN(f.Value)
		if err != nil {
			return false
		}
		for _, v := range values {
			if have, err := ParseDN(v); err == nil && have.Equal(want) {
				return true
			}
		}
		return false
	}

	for _, v := range values {
		if strings.EqualFold(v, f.Value) {
			return true
		}
	}
	return false
}
