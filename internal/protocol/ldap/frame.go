package ldap

import (
	"errors"
	"fmt"
	"io"
)

// ErrFraming is returned for input that cannot be an LDAPMessage: a bad
// length prefix, a truncated encoding, a non-sequence envelope or an invalid
// message ID. The connection must be closed without a response.
var ErrFraming = errors.New("ldap: malformed frame")

// ErrProtocol is returned for a well-framed message whose operation body is
// malformed. The server answers with a Notice of Disconnection.
var ErrProtocol = errors.New("ldap: protocol error")

// DefaultMaxMessageSize bounds a single LDAPMessage.
const DefaultMaxMessageSize = 1 << 20

// tagSequence is the identifier octet of the LDAPMessage envelope
// (universal, constructed, SEQUENCE).
const tagSequence = 0x30

// maxLengthOctets bounds the long-form length prefix. Four octets already
// exceed any sane message size.
const maxLengthOctets = 4

// ReadFrame reads exactly one LDAPMessage from r and returns its complete
// encoding (identifier, length and contents).
//
// io.EOF is returned untouched when r ends cleanly before the first octet,
// so callers can tell a closed connection from a torn one. Every other
// failure wraps ErrFraming.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	var hdr [2 + maxLengthOctets]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read identifier: %v", ErrFraming, err)
	}
	if hdr[0] != tagSequence {
		return nil, fmt.Errorf("%w: identifier 0x%02x is not a SEQUENCE", ErrFraming, hdr[0])
	}

	if _, err := io.ReadFull(r, hdr[1:2]); err != nil {
		return nil, fmt.Errorf("%w: read length: %v", ErrFraming, err)
	}

	hdrLen := 2
	length := int(hdr[1])
	if hdr[1]&0x80 != 0 {
		n := int(hdr[1] & 0x7f)
		switch {
		case n == 0:
			return nil, fmt.Errorf("%w: indefinite length", ErrFraming)
		case n > maxLengthOctets:
			return nil, fmt.Errorf("%w: %d length octets", ErrFraming, n)
		}
		if _, err := io.ReadFull(r, hdr[2:2+n]); err != nil {
			return nil, fmt.Errorf("%w: read length: %v", ErrFraming, err)
		}
		length = 0
		for _, b := range hdr[2 : 2+n] {
			length = length<<8 | int(b)
		}
		hdrLen += n
	}

	if length > maxSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds limit of %d", ErrFraming, length, maxSize)
	}

	frame := make([]byte, hdrLen+length)
	copy(frame, hdr[:hdrLen])
	if _, err := io.ReadFull(r, frame[hdrLen:]); err != nil {
		return nil, fmt.Errorf("%w: read %d byte body: %v", ErrFraming, length, err)
	}
	return frame, nil
}
