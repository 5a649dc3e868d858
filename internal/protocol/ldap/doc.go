// Package ldap implements the LDAPv3 wire format (RFC 4511) used by the LDAP
// adapter.
//
// # Layers
//
//   - Framing (frame.go): reads one BER-encoded LDAPMessage off a stream,
//     bounding its size before any allocation.
//   - Decoding (message.go, filter.go): turns a frame into a Message whose
//     operation is one of the request types below. Search filters decode
//     straight into identity.Filter.
//   - Encoding (encode.go): builds response PDUs. Encoding is deterministic,
//     so identical responses produce identical bytes.
//
// # Supported Operations
//
//   - BindRequest (simple authentication only)
//   - UnbindRequest
//   - SearchRequest
//   - ExtendedRequest (the adapter answers Who Am I?)
//   - AbandonRequest (decoded, then ignored)
//   - Add, Modify, Delete, ModifyDN and Compare are decoded only far enough
//     to be refused with the matching response tag
//
// BER primitives come from github.com/go-asn1-ber/asn1-ber; protocol
// constants (application tags, result codes, filter choices) come from
// github.com/go-ldap/ldap/v3.
package ldap
