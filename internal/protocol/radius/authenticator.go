// Package radius holds the RADIUS wire helpers layered on layeh.com/radius:
// Message-Authenticator verification and signing (RFC 3579 section 3.2,
// RFC 2869 section 5.14) and the dictionary that turns named reply
// attributes into typed AVPs.
package radius

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"

	"layeh.com/radius"
	"layeh.com/radius/rfc2869"
)

const (
	headerLength = 20

	// MaxPacketSize is the largest RADIUS packet (RFC 2865 section 3).
	MaxPacketSize = 4096

	messageAuthenticatorLength = md5.Size
)

var (
	// ErrMalformed is returned for packets whose header or attributes cannot
	// be walked.
	ErrMalformed = errors.New("malformed RADIUS packet")

	// ErrMissingAuthenticator is returned when a request carries no
	// Message-Authenticator.
	ErrMissingAuthenticator = errors.New("missing Message-Authenticator")

	// ErrBadAuthenticator is returned when the Message-Authenticator does not
	// verify with the shared secret.
	ErrBadAuthenticator = errors.New("invalid Message-Authenticator")
)

// messageAuthenticatorOffset returns the offset of the Message-Authenticator
// value in pkt, or -1 if the packet has none.
func messageAuthenticatorOffset(pkt []byte) (int, error) {
	for off := headerLength; off < len(pkt); {
		if off+2 > len(pkt) {
			return -1, fmt.Errorf("%w: truncated attribute at offset %d", ErrMalformed, off)
		}
		typ, length := pkt[off], int(pkt[off+1])
		if length < 2 || off+length > len(pkt) {
			return -1, fmt.Errorf("%w: attribute %d has length %d", ErrMalformed, typ, length)
		}
		if radius.Type(typ) == rfc2869.MessageAuthenticator_Type {
			if length != 2+messageAuthenticatorLength {
				return -1, fmt.Errorf("%w: Message-Authenticator has length %d", ErrMalformed, length)
			}
			return off + 2, nil
		}
		off += length
	}
	return -1, nil
}

// packetBytes trims raw to the length announced in its header.
func packetBytes(raw []byte) ([]byte, error) {
	if len(raw) < headerLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}
	n := int(binary.BigEndian.Uint16(raw[2:4]))
	if n < headerLength || n > len(raw) || n > MaxPacketSize {
		return nil, fmt.Errorf("%w: length field %d for %d bytes", ErrMalformed, n, len(raw))
	}
	return raw[:n], nil
}

// HasMessageAuthenticator reports whether raw carries a Message-Authenticator.
func HasMessageAuthenticator(raw []byte) bool {
	pkt, err := packetBytes(raw)
	if err != nil {
		return false
	}
	off, err := messageAuthenticatorOffset(pkt)
	return err == nil && off >= 0
}

// VerifyRequest checks the Message-Authenticator of a request packet: an
// HMAC-MD5 keyed with the shared secret over the packet with the attribute
// value zeroed.
//
// Returns ErrMissingAuthenticator when the attribute is absent,
// ErrBadAuthenticator on mismatch and ErrMalformed when the attributes
// cannot be walked.
func VerifyRequest(raw, secret []byte) error {
	pkt, err := packetBytes(raw)
	if err != nil {
		return err
	}
	off, err := messageAuthenticatorOffset(pkt)
	if err != nil {
		return err
	}
	if off < 0 {
		return ErrMissingAuthenticator
	}

	zeroed := make([]byte, len(pkt))
	copy(zeroed, pkt)
	clear(zeroed[off : off+messageAuthenticatorLength])

	if !hmac.Equal(hmacMD5(secret, zeroed), pkt[off:off+messageAuthenticatorLength]) {
		return ErrBadAuthenticator
	}
	return nil
}

// SignRequest adds a Message-Authenticator to a request and returns the
// encoded packet. The request's own authenticator is covered by the HMAC.
func SignRequest(p *radius.Packet) ([]byte, error) {
	return sign(p, p.Authenticator)
}

// EncodeResponse encodes a response built with Packet.Response. When
// withMessageAuthenticator is set, the Message-Authenticator is computed over
// the packet carrying the request authenticator, then the Response
// Authenticator is computed over the final attributes.
func EncodeResponse(resp *radius.Packet, requestAuthenticator [16]byte, withMessageAuthenticator bool) ([]byte, error) {
	resp.Authenticator = requestAuthenticator
	if !withMessageAuthenticator {
		return resp.Encode()
	}
	return sign(resp, requestAuthenticator)
}

func sign(p *radius.Packet, authenticator [16]byte) ([]byte, error) {
	p.Authenticator = authenticator
	p.Attributes.Del(rfc2869.MessageAuthenticator_Type)
	p.Attributes.Add(rfc2869.MessageAuthenticator_Type, make(radius.Attribute, messageAuthenticatorLength))

	b, err := p.Encode()
	if err != nil {
		return nil, err
	}
	copy(b[4:headerLength], authenticator[:])

	p.Attributes.Set(rfc2869.MessageAuthenticator_Type, hmacMD5(p.Secret, b))
	p.Authenticator = authenticator
	return p.Encode()
}

func hmacMD5(secret, data []byte) []byte {
	mac := hmac.New(md5.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}
