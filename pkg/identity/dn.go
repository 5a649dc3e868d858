package identity

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrInvalidDN is returned when a string is not a valid distinguished name.
var ErrInvalidDN = errors.New("invalid DN")

type ava struct {
	typ string
	val string
}

// rdn is one relative DN. Multi-valued RDNs are kept sorted by type.
type rdn []ava

// DN is a parsed distinguished name. rdns[0] is the leaf. The zero DN is the
// root (the empty DN of the Root DSE).
type DN struct {
	rdns []rdn
}

// ParseDN parses an RFC 4514 string. The empty string is the root DN.
func ParseDN(s string) (DN, error) {
	if strings.TrimSpace(s) == "" {
		return DN{}, nil
	}

	parsed, err := ldap.ParseDN(s)
	if err != nil {
		return DN{}, fmt.Errorf("%w: %q: %v", ErrInvalidDN, s, err)
	}

	d := DN{rdns: make([]rdn, 0, len(parsed.RDNs))}
	for _, r := range parsed.RDNs {
		if len(r.Attributes) == 0 {
			return DN{}, fmt.Errorf("%w: %q: empty RDN", ErrInvalidDN, s)
		}
		out := make(rdn, 0, len(r.Attributes))
		for _, a := range r.Attributes {
			if strings.TrimSpace(a.Type) == "" {
				return DN{}, fmt.Errorf("%w: %q: empty attribute type", ErrInvalidDN, s)
			}
			out = append(out, ava{typ: strings.TrimSpace(a.Type), val: a.Value})
		}
		slices.SortFunc(out, func(a, b ava) int {
			return strings.Compare(strings.ToLower(a.typ), strings.ToLower(b.typ))
		})
		d.rdns = append(d.rdns, out)
	}
	return d, nil
}

// MustParseDN is ParseDN for constants; it panics on error.
func MustParseDN(s string) DN {
	d, err := ParseDN(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Child returns the DN of a single-valued child entry.
func (d DN) Child(typ, value string) DN {
	rdns := make([]rdn, 0, len(d.rdns)+1)
	rdns = append(rdns, rdn{{typ: typ, val: value}})
	return DN{rdns: append(rdns, d.rdns...)}
}

// Parent returns the DN with the leaf RDN removed. The parent of the root is
// the root.
func (d DN) Parent() DN {
	if len(d.rdns) == 0 {
		return d
	}
	return DN{rdns: d.rdns[1:]}
}

// Depth returns the number of RDNs.
func (d DN) Depth() int { return len(d.rdns) }

// IsRoot reports whether d is the empty DN.
func (d DN) IsRoot() bool { return len(d.rdns) == 0 }

// Leaf returns the type and value of a single-valued leaf RDN.
func (d DN) Leaf() (typ, value string, ok bool) {
	if len(d.rdns) == 0 || len(d.rdns[0]) != 1 {
		return "", "", false
	}
	return d.rdns[0][0].typ, d.rdns[0][0].val, true
}

// Equal compares two DNs with case-insensitive types and values.
func (d DN) Equal(o DN) bool {
	return d.Key() == o.Key()
}

// IsWithin reports whether d equals anc or lies below it.
func (d DN) IsWithin(anc DN) bool {
	if len(d.rdns) < len(anc.rdns) {
		return false
	}
	off := len(d.rdns) - len(anc.rdns)
	for i := range anc.rdns {
		if rdnKey(d.rdns[off+i]) != rdnKey(anc.rdns[i]) {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether d lies strictly below anc.
func (d DN) IsDescendantOf(anc DN) bool {
	return len(d.rdns) > len(anc.rdns) && d.IsWithin(anc)
}

// Key returns the normalized form used for comparisons and map keys.
func (d DN) Key() string {
	parts := make([]string, len(d.rdns))
	for i, r := range d.rdns {
		parts[i] = rdnKey(r)
	}
	return strings.Join(parts, ",")
}

func rdnKey(r rdn) string {
	parts := make([]string, len(r))
	for i, a := range r {
		parts[i] = strings.ToLower(a.typ) + "=" + strings.ToLower(a.val)
	}
	return strings.Join(parts, "+")
}

// String returns the RFC 4514 form, preserving the original case.
func (d DN) String() string {
	var b strings.Builder
	for i, r := range d.rdns {
		if i > 0 {
			b.WriteByte(',')
		}
		for j, a := range r {
			if j > 0 {
				b.WriteByte('+')
			}
			b.WriteString(a.typ)
			b.WriteByte('=')
			b.WriteString(EscapeDNValue(a.val))
		}
	}
	return b.String()
}

// EscapeDNValue escapes an attribute value for use in a DN string
// (RFC 4514 section 2.4).
func EscapeDNValue(v string) string {
	if v == "" {
		return v
	}

	var b strings.Builder
	last := len(v) - 1
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c == ',' || c == '+' || c == '"' || c == '\\' || c == '<' || c == '>' || c == ';' || c == '=':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == 0:
			b.WriteString(`\00`)
		case i == 0 && (c == ' ' || c == '#'):
			b.WriteByte('\\')
			b.WriteByte(c)
		case i == last && c == ' ':
			b.WriteString(`\ `)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
