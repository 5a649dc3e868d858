package radius

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2868"
	"layeh.com/radius/rfc2869"
)

// ErrUnknownAttribute is returned for reply attribute names missing from the
// dictionary.
var ErrUnknownAttribute = errors.New("unknown RADIUS attribute")

type valueKind int

const (
	kindText valueKind = iota
	kindOctets
	kindInteger
	kindIPAddr
	kindTaggedText    // RFC 2868 section 3, optional tag before the string
	kindTaggedInteger // RFC 2868 section 3, tag then 24-bit value
)

// AttributeDef is a reply dictionary entry.
type AttributeDef struct {
	Name  string
	Type  radius.Type
	kind  valueKind
	named map[string]uint32 // symbolic integer values, lowercase
}

// replyAttributes are the attributes a user record may carry into an
// Access-Accept. Lookup is case-insensitive.
var replyAttributes = indexDefs(
	AttributeDef{Name: "Filter-Id", Type: rfc2865.FilterID_Type, kind: kindText},
	AttributeDef{Name: "Class", Type: rfc2865.Class_Type, kind: kindOctets},
	AttributeDef{Name: "Reply-Message", Type: rfc2865.ReplyMessage_Type, kind: kindText},
	AttributeDef{Name: "Callback-Number", Type: rfc2865.CallbackNumber_Type, kind: kindText},
	AttributeDef{Name: "Session-Timeout", Type: rfc2865.SessionTimeout_Type, kind: kindInteger},
	AttributeDef{Name: "Idle-Timeout", Type: rfc2865.IdleTimeout_Type, kind: kindInteger},
	AttributeDef{Name: "Framed-MTU", Type: rfc2865.FramedMTU_Type, kind: kindInteger},
	AttributeDef{Name: "Framed-IP-Address", Type: rfc2865.FramedIPAddress_Type, kind: kindIPAddr},
	AttributeDef{Name: "Framed-IP-Netmask", Type: rfc2865.FramedIPNetmask_Type, kind: kindIPAddr},
	AttributeDef{Name: "Service-Type", Type: rfc2865.ServiceType_Type, kind: kindInteger, named: map[string]uint32{
		"login-user":              1,
		"framed-user":             2,
		"callback-login-user":     3,
		"callback-framed-user":    4,
		"outbound-user":           5,
		"administrative-user":     6,
		"nas-prompt-user":         7,
		"authenticate-only":       8,
		"callback-nas-prompt":     9,
		"call-check":              10,
		"callback-administrative": 11,
	}},
	AttributeDef{Name: "Framed-Protocol", Type: rfc2865.FramedProtocol_Type, kind: kindInteger, named: map[string]uint32{
		"ppp":  1,
		"slip": 2,
	}},
	AttributeDef{Name: "Termination-Action", Type: rfc2865.TerminationAction_Type, kind: kindInteger, named: map[string]uint32{
		"default":        0,
		"radius-request": 1,
	}},
	AttributeDef{Name: "Acct-Interim-Interval", Type: rfc2869.AcctInterimInterval_Type, kind: kindInteger},
	AttributeDef{Name: "Tunnel-Type", Type: rfc2868.TunnelType_Type, kind: kindTaggedInteger, named: map[string]uint32{
		"pptp":  1,
		"l2tp":  3,
		"gre":   10,
		"vlan":  13,
		"ip-ip": 7,
	}},
	AttributeDef{Name: "Tunnel-Medium-Type", Type: rfc2868.TunnelMediumType_Type, kind: kindTaggedInteger, named: map[string]uint32{
		"ipv4":     1,
		"ipv6":     2,
		"ieee-802": 6,
	}},
	AttributeDef{Name: "Tunnel-Private-Group-Id", Type: rfc2868.TunnelPrivateGroupID_Type, kind: kindTaggedText},
)

func indexDefs(defs ...AttributeDef) map[string]AttributeDef {
	m := make(map[string]AttributeDef, len(defs))
	for _, d := range defs {
		m[strings.ToLower(d.Name)] = d
	}
	return m
}

// LookupAttribute returns the dictionary entry for name.
func LookupAttribute(name string) (AttributeDef, bool) {
	d, ok := replyAttributes[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

// KnownAttributes returns the canonical names of the reply dictionary.
func KnownAttributes() []string {
	names := make([]string, 0, len(replyAttributes))
	for _, d := range replyAttributes {
		names = append(names, d.Name)
	}
	slices.Sort(names)
	return names
}

// AddReplyAttribute encodes every value of a named attribute onto p.
//
// Returns ErrUnknownAttribute when the name is not in the dictionary, or an
// error naming the attribute when a value does not fit its type. Nothing is
// added to p on error.
func AddReplyAttribute(p *radius.Packet, name string, values ...string) error {
	def, ok := LookupAttribute(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}

	encoded := make([]radius.Attribute, 0, len(values))
	for _, v := range values {
		a, err := def.encode(v)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", def.Name, err)
		}
		encoded = append(encoded, a)
	}
	for _, a := range encoded {
		p.Attributes.Add(def.Type, a)
	}
	return nil
}

func (d AttributeDef) encode(value string) (radius.Attribute, error) {
	switch d.kind {
	case kindText:
		return radius.NewString(value)
	case kindOctets:
		return radius.NewBytes([]byte(value))
	case kindInteger:
		n, err := d.integer(value)
		if err != nil {
			return nil, err
		}
		return radius.NewInteger(n), nil
	case kindIPAddr:
		ip := net.ParseIP(strings.TrimSpace(value))
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid IPv4 address %q", value)
		}
		return radius.NewIPAddr(ip)
	case kindTaggedInteger:
		tag, rest := splitTag(value)
		n, err := d.integer(rest)
		if err != nil {
			return nil, err
		}
		if n > 0xFFFFFF {
			return nil, fmt.Errorf("value %d does not fit 24 bits", n)
		}
		return radius.Attribute{tag, byte(n >> 16), byte(n >> 8), byte(n)}, nil
	case kindTaggedText:
		tag, rest := splitTag(value)
		if tag == 0 {
			return radius.NewString(rest)
		}
		if len(rest) > 252 {
			return nil, fmt.Errorf("value is %d bytes, at most 252 fit", len(rest))
		}
		return append(radius.Attribute{tag}, rest...), nil
	default:
		return nil, fmt.Errorf("unsupported kind %d", d.kind)
	}
}

func (d AttributeDef) integer(value string) (uint32, error) {
	value = strings.TrimSpace(value)
	if n, ok := d.named[strings.ToLower(value)]; ok {
		return n, nil
	}
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", value)
	}
	return uint32(n), nil
}

// splitTag separates an optional "<tag>:" prefix (1-31) from a tagged
// attribute value, e.g. "1:VLAN".
func splitTag(value string) (byte, string) {
	prefix, rest, found := strings.Cut(value, ":")
	if !found {
		return 0, value
	}
	tag, err := strconv.ParseUint(prefix, 10, 8)
	if err != nil || tag < 1 || tag > 0x1F {
		return 0, value
	}
	return byte(tag), rest
}
