package ldap

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	goldap "github.com/go-ldap/ldap/v3"

	"github.com/marmos91/concess/pkg/identity"
)

// NoticeOfDisconnectionOID is the responseName of the unsolicited Notice of
// Disconnection (RFC 4511 section 4.4.1).
const NoticeOfDisconnectionOID = "1.3.6.1.4.1.1466.20036"

// ============================================================================
// Response Encoders - Go Types → Wire Format
// ============================================================================

// EncodeResult encodes a response made of an LDAPResult only. op is the
// application tag of the response (BindResponse, SearchResultDone,
// ModifyResponse, ...).
func EncodeResult(id int64, op uint8, code uint16, matchedDN, message string) []byte {
	return envelope(id, resultPacket(op, code, matchedDN, message))
}

// EncodeBindResponse encodes a BindResponse without serverSaslCreds.
func EncodeBindResponse(id int64, code uint16, message string) []byte {
	return EncodeResult(id, goldap.ApplicationBindResponse, code, "", message)
}

// EncodeSearchEntry encodes a SearchResultEntry. Attributes keep their order;
// an attribute without values encodes an empty SET, as typesOnly requires.
func EncodeSearchEntry(id int64, e *identity.Entry) []byte {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, goldap.ApplicationSearchResultEntry, nil, "Search Result Entry")
	op.AppendChild(octetString(e.DN.String()))

	attrs := ber.NewSequence("Attributes")
	for _, a := range e.Attributes {
		attr := ber.NewSequence("Attribute")
		attr.AppendChild(octetString(a.Name))
		vals := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "Values")
		for _, v := range a.Values {
			vals.AppendChild(octetString(v))
		}
		attr.AppendChild(vals)
		attrs.AppendChild(attr)
	}
	op.AppendChild(attrs)

	return envelope(id, op)
}

// EncodeSearchDone encodes the SearchResultDone closing a search.
func EncodeSearchDone(id int64, code uint16, matchedDN, message string) []byte {
	return EncodeResult(id, goldap.ApplicationSearchResultDone, code, matchedDN, message)
}

// EncodeExtendedResponse encodes an ExtendedResponse. An empty name omits
// responseName; a nil value omits responseValue.
func EncodeExtendedResponse(id int64, code uint16, message, name string, value []byte) []byte {
	return envelope(id, extendedPacket(code, message, name, value))
}

// EncodeNoticeOfDisconnection encodes the unsolicited notification sent
// before the server closes a connection on its own initiative.
func EncodeNoticeOfDisconnection(code uint16, message string) []byte {
	return envelope(0, extendedPacket(code, message, NoticeOfDisconnectionOID, nil))
}

func extendedPacket(code uint16, message, name string, value []byte) *ber.Packet {
	op := resultPacket(goldap.ApplicationExtendedResponse, code, "", message)
	if name != "" {
		op.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 10, name, "Response Name"))
	}
	if value != nil {
		v := ber.Encode(ber.ClassContext, ber.TypePrimitive, 11, nil, "Response Value")
		v.Data.Write(value)
		op.AppendChild(v)
	}
	return op
}

// LDAPResult ::= SEQUENCE {
//
//	resultCode ENUMERATED, matchedDN LDAPDN, diagnosticMessage LDAPString,
//	referral [3] Referral OPTIONAL }
func resultPacket(op uint8, code uint16, matchedDN, message string) *ber.Packet {
	p := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(op), nil, goldap.ApplicationMap[op])
	p.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, int64(code), "Result Code"))
	p.AppendChild(octetString(matchedDN))
	p.AppendChild(octetString(message))
	return p
}

func envelope(id int64, op *ber.Packet) []byte {
	msg := ber.NewSequence("LDAP Response")
	msg.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, id, "Message ID"))
	msg.AppendChild(op)
	return msg.Bytes()
}

func octetString(s string) *ber.Packet {
	return ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, s, "")
}
