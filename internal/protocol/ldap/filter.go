package ldap

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/concess/pkg/identity"
)

// maxFilterDepth bounds And/Or/Not nesting.
const maxFilterDepth = 32

// decodeFilter decodes a Filter CHOICE (RFC 4511 section 4.5.1.7).
// Substrings, ordering, approximate and extensible matches decode into
// identity.Unsupported so the directory can refuse them with a result code
// instead of the connection being dropped.
func decodeFilter(p *ber.Packet) (identity.Filter, error) {
	return decodeFilterDepth(p, 0)
}

func decodeFilterDepth(p *ber.Packet, depth int) (identity.Filter, error) {
	if depth > maxFilterDepth {
		return nil, protocolErrorf("filter nested deeper than %d", maxFilterDepth)
	}
	if p.ClassType != ber.ClassContext {
		return nil, protocolErrorf("filter: element is not context-tagged")
	}

	switch p.Tag {
	case goldap.FilterAnd, goldap.FilterOr:
		children := make([]identity.Filter, 0, len(p.Children))
		for _, c := range p.Children {
			f, err := decodeFilterDepth(c, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, f)
		}
		if p.Tag == goldap.FilterAnd {
			return identity.And(children), nil
		}
		return identity.Or(children), nil

	case goldap.FilterNot:
		if len(p.Children) != 1 {
			return nil, protocolErrorf("not filter with %d elements", len(p.Children))
		}
		f, err := decodeFilterDepth(p.Children[0], depth+1)
		if err != nil {
			return nil, err
		}
		return identity.Not{Filter: f}, nil

	case goldap.FilterEqualityMatch:
		attr, value, err := assertion(p)
		if err != nil {
			return nil, err
		}
		return identity.Equality{Attr: attr, Value: value}, nil

	case goldap.FilterPresent:
		if p.TagType != ber.TypePrimitive || p.Data.Len() == 0 {
			return nil, protocolErrorf("present filter without attribute")
		}
		return identity.Present{Attr: p.Data.String()}, nil

	case goldap.FilterSubstrings,
		goldap.FilterGreaterOrEqual,
		goldap.FilterLessOrEqual,
		goldap.FilterApproxMatch:
		attr := ""
		if len(p.Children) > 0 {
			attr = p.Children[0].Data.String()
		}
		return identity.Unsupported{Kind: filterKind(p.Tag), Attr: attr}, nil

	case goldap.FilterExtensibleMatch:
		attr := ""
		for _, c := range p.Children {
			if c.Tag == goldap.MatchingRuleAssertionType {
				attr = c.Data.String()
			}
		}
		return identity.Unsupported{Kind: filterKind(p.Tag), Attr: attr}, nil

	default:
		return nil, protocolErrorf("unknown filter choice %d", p.Tag)
	}
}

// assertion decodes an AttributeValueAssertion.
func assertion(p *ber.Packet) (string, string, error) {
	if len(p.Children) != 2 {
		return "", "", protocolErrorf("attribute value assertion with %d elements", len(p.Children))
	}
	attr, err := stringOf(p.Children[0])
	if err != nil || attr == "" {
		return "", "", protocolErrorf("assertion attribute: %v", err)
	}
	value, err := stringOf(p.Children[1])
	if err != nil {
		return "", "", protocolErrorf("assertion value: %v", err)
	}
	return attr, value, nil
}

var filterKinds = map[ber.Tag]string{
	goldap.FilterSubstrings:      "substrings",
	goldap.FilterGreaterOrEqual:  "greaterOrEqual",
	goldap.FilterLessOrEqual:     "lessOrEqual",
	goldap.FilterApproxMatch:     "approxMatch",
	goldap.FilterExtensibleMatch: "extensibleMatch",
}

func filterKind(tag ber.Tag) string {
	return filterKinds[tag]
}
