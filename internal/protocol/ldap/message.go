package ldap

import (
	"fmt"
	"math"

	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/concess/pkg/identity"
)

// Request is the decoded protocolOp of an LDAPMessage.
type Request interface {
	// Tag returns the application tag of the request.
	Tag() uint8
}

// Message is a decoded LDAPMessage.
type Message struct {
	ID       int64
	Op       Request
	Controls []Control
}

// OpName returns a human readable name for the message's operation.
func (m *Message) OpName() string {
	if m == nil || m.Op == nil {
		return "unknown"
	}
	if name, ok := goldap.ApplicationMap[m.Op.Tag()]; ok {
		return name
	}
	return fmt.Sprintf("application %d", m.Op.Tag())
}

// Control is a request control (RFC 4511 section 4.1.11).
type Control struct {
	OID      string
	Critical bool
	Value    []byte
}

// Name returns the well-known name of the control, or its OID.
func (c Control) Name() string {
	if name, ok := goldap.ControlTypeMap[c.OID]; ok {
		return name
	}
	return c.OID
}

// BindRequest is a BindRequest. Only simple authentication carries a
// password; SASL requests keep the mechanism for the refusal log.
type BindRequest struct {
	Version   int
	Name      string
	Simple    bool
	Password  string
	Mechanism string
}

func (*BindRequest) Tag() uint8 { return goldap.ApplicationBindRequest }

// UnbindRequest is an UnbindRequest.
type UnbindRequest struct{}

func (*UnbindRequest) Tag() uint8 { return goldap.ApplicationUnbindRequest }

// SearchRequest is a SearchRequest.
type SearchRequest struct {
	BaseDN       string
	Scope        identity.Scope
	DerefAliases int
	SizeLimit    int
	TimeLimit    int
	TypesOnly    bool
	Filter       identity.Filter
	Attributes   []string
}

func (*SearchRequest) Tag() uint8 { return goldap.ApplicationSearchRequest }

// ExtendedRequest is an ExtendedRequest.
type ExtendedRequest struct {
	Name  string
	Value []byte
}

func (*ExtendedRequest) Tag() uint8 { return goldap.ApplicationExtendedRequest }

// AbandonRequest is an AbandonRequest.
type AbandonRequest struct {
	MessageID int64
}

func (*AbandonRequest) Tag() uint8 { return goldap.ApplicationAbandonRequest }

// UpdateRequest is an Add, Modify, Delete, ModifyDN or Compare request. The
// body is not decoded; the server only refuses these.
type UpdateRequest struct {
	tag uint8
}

func (r *UpdateRequest) Tag() uint8 { return r.tag }

// ResponseTag returns the application tag of the matching response.
func (r *UpdateRequest) ResponseTag() uint8 { return r.tag + 1 }

// UnknownRequest is any other application tag, including response PDUs sent
// by a confused client.
type UnknownRequest struct {
	tag uint8
}

func (r *UnknownRequest) Tag() uint8 { return r.tag }

// DecodeMessage decodes one frame returned by ReadFrame.
//
// Errors wrap ErrFraming when the envelope is unusable and ErrProtocol when
// only the operation body is malformed. In the latter case the returned
// Message still carries the ID.
func DecodeMessage(frame []byte) (*Message, error) {
	packet, err := ber.DecodePacketErr(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	if packet.ClassType != ber.ClassUniversal || packet.TagType != ber.TypeConstructed || packet.Tag != ber.TagSequence {
		return nil, fmt.Errorf("%w: envelope is not a SEQUENCE", ErrFraming)
	}
	if len(packet.Children) < 2 || len(packet.Children) > 3 {
		return nil, fmt.Errorf("%w: envelope has %d elements", ErrFraming, len(packet.Children))
	}

	id, err := integerOf(packet.Children[0])
	if err != nil {
		return nil, fmt.Errorf("%w: message ID: %v", ErrFraming, err)
	}
	if id <= 0 || id > math.MaxInt32 {
		return nil, fmt.Errorf("%w: message ID %d out of range", ErrFraming, id)
	}

	msg := &Message{ID: id}

	opPacket := packet.Children[1]
	if opPacket.ClassType != ber.ClassApplication {
		return msg, fmt.Errorf("%w: protocolOp is not application-tagged", ErrProtocol)
	}
	if msg.Op, err = decodeOp(opPacket); err != nil {
		return msg, err
	}

	if len(packet.Children) == 3 {
		if msg.Controls, err = decodeControls(packet.Children[2]); err != nil {
			return msg, err
		}
	}
	return msg, nil
}

func decodeOp(p *ber.Packet) (Request, error) {
	tag := uint8(p.Tag)
	switch tag {
	case goldap.ApplicationBindRequest:
		return decodeBind(p)
	case goldap.ApplicationUnbindRequest:
		return &UnbindRequest{}, nil
	case goldap.ApplicationSearchRequest:
		return decodeSearch(p)
	case goldap.ApplicationExtendedRequest:
		return decodeExtended(p)
	case goldap.ApplicationAbandonRequest:
		id, err := ber.ParseInt64(p.Data.Bytes())
		if err != nil {
			return nil, protocolErrorf("abandon: %v", err)
		}
		return &AbandonRequest{MessageID: id}, nil
	case goldap.ApplicationModifyRequest,
		goldap.ApplicationAddRequest,
		goldap.ApplicationDelRequest,
		goldap.ApplicationModifyDNRequest,
		goldap.ApplicationCompareRequest:
		return &UpdateRequest{tag: tag}, nil
	default:
		return &UnknownRequest{tag: tag}, nil
	}
}

// BindRequest ::= [APPLICATION 0] SEQUENCE {
//
//	version INTEGER, name LDAPDN,
//	authentication CHOICE { simple [0] OCTET STRING, sasl [3] SaslCredentials } }
func decodeBind(p *ber.Packet) (*BindRequest, error) {
	if len(p.Children) != 3 {
		return nil, protocolErrorf("bind: %d elements", len(p.Children))
	}
	version, err := integerOf(p.Children[0])
	if err != nil {
		return nil, protocolErrorf("bind version: %v", err)
	}
	name, err := stringOf(p.Children[1])
	if err != nil {
		return nil, protocolErrorf("bind name: %v", err)
	}

	req := &BindRequest{Version: int(version), Name: name}
	auth := p.Children[2]
	if auth.ClassType != ber.ClassContext {
		return nil, protocolErrorf("bind: authentication choice is not context-tagged")
	}
	switch auth.Tag {
	case 0:
		req.Simple = true
		req.Password = auth.Data.String()
	case 3:
		if len(auth.Children) > 0 {
			req.Mechanism, _ = stringOf(auth.Children[0])
		}
	default:
		req.Mechanism = fmt.Sprintf("choice %d", auth.Tag)
	}
	return req, nil
}

// SearchRequest ::= [APPLICATION 3] SEQUENCE {
//
//	baseObject LDAPDN, scope ENUMERATED, derefAliases ENUMERATED,
//	sizeLimit INTEGER, timeLimit INTEGER, typesOnly BOOLEAN,
//	filter Filter, attributes AttributeSelection }
func decodeSearch(p *ber.Packet) (*SearchRequest, error) {
	if len(p.Children) != 8 {
		return nil, protocolErrorf("search: %d elements", len(p.Children))
	}

	base, err := stringOf(p.Children[0])
	if err != nil {
		return nil, protocolErrorf("search base: %v", err)
	}
	scope, err := integerOf(p.Children[1])
	if err != nil || scope < 0 || scope > 2 {
		return nil, protocolErrorf("search scope: %v", p.Children[1].Value)
	}
	deref, err := integerOf(p.Children[2])
	if err != nil {
		return nil, protocolErrorf("search derefAliases: %v", err)
	}
	sizeLimit, err := integerOf(p.Children[3])
	if err != nil || sizeLimit < 0 {
		return nil, protocolErrorf("search sizeLimit: %v", p.Children[3].Value)
	}
	timeLimit, err := integerOf(p.Children[4])
	if err != nil || timeLimit < 0 {
		return nil, protocolErrorf("search timeLimit: %v", p.Children[4].Value)
	}
	typesOnly, ok := p.Children[5].Value.(bool)
	if !ok {
		return nil, protocolErrorf("search typesOnly is not a BOOLEAN")
	}
	filter, err := decodeFilter(p.Children[6])
	if err != nil {
		return nil, err
	}

	attrsPacket := p.Children[7]
	attrs := make([]string, 0, len(attrsPacket.Children))
	for _, a := range attrsPacket.Children {
		name, err := stringOf(a)
		if err != nil {
			return nil, protocolErrorf("search attribute: %v", err)
		}
		attrs = append(attrs, name)
	}

	return &SearchRequest{
		BaseDN:       base,
		Scope:        identity.Scope(scope),
		DerefAliases: int(deref),
		SizeLimit:    int(sizeLimit),
		TimeLimit:    int(timeLimit),
		TypesOnly:    typesOnly,
		Filter:       filter,
		Attributes:   attrs,
	}, nil
}

// ExtendedRequest ::= [APPLICATION 23] SEQUENCE {
//
//	requestName [0] LDAPOID, requestValue [1] OCTET STRING OPTIONAL }
func decodeExtended(p *ber.Packet) (*ExtendedRequest, error) {
	req := &ExtendedRequest{}
	for _, c := range p.Children {
		if c.ClassType != ber.ClassContext {
			return nil, protocolErrorf("extended: element is not context-tagged")
		}
		switch c.Tag {
		case 0:
			req.Name = c.Data.String()
		case 1:
			req.Value = append([]byte(nil), c.Data.Bytes()...)
		}
	}
	if req.Name == "" {
		return nil, protocolErrorf("extended: missing requestName")
	}
	return req, nil
}

// Controls ::= [0] SEQUENCE OF Control
func decodeControls(p *ber.Packet) ([]Control, error) {
	if p.ClassType != ber.ClassContext || p.Tag != 0 {
		return nil, protocolErrorf("controls: unexpected element")
	}
	out := make([]Control, 0, len(p.Children))
	for _, c := range p.Children {
		if len(c.Children) == 0 || len(c.Children) > 3 {
			return nil, protocolErrorf("control: %d elements", len(c.Children))
		}
		oid, err := stringOf(c.Children[0])
		if err != nil {
			return nil, protocolErrorf("control type: %v", err)
		}
		ctrl := Control{OID: oid}
		for _, field := range c.Children[1:] {
			switch field.Tag {
			case ber.TagBoolean:
				ctrl.Critical, _ = field.Value.(bool)
			case ber.TagOctetString:
				ctrl.Value = append([]byte(nil), field.Data.Bytes()...)
			}
		}
		out = append(out, ctrl)
	}
	return out, nil
}

func integerOf(p *ber.Packet) (int64, error) {
	if p.ClassType != ber.ClassUniversal || (p.Tag != ber.TagInteger && p.Tag != ber.TagEnumerated) {
		return 0, fmt.Errorf("expected INTEGER, got tag %d", p.Tag)
	}
	v, ok := p.Value.(int64)
	if !ok {
		return 0, fmt.Errorf("unparsable INTEGER")
	}
	return v, nil
}

func stringOf(p *ber.Packet) (string, error) {
	if p.TagType != ber.TypePrimitive {
		return "", fmt.Errorf("expected OCTET STRING, got constructed tag %d", p.Tag)
	}
	return p.Data.String(), nil
}

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrProtocol}, args...)...)
}
