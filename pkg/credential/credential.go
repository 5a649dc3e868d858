// Package credential verifies presented secrets against the credential
// strings stored in user records.
//
// Supported stored formats:
//   - PHC argon2 strings: $argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
//   - bcrypt hashes: $2a$, $2b$, $2y$
//   - reversible cleartext: {CLEARTEXT}<secret>
//
// Verification never fails with an error. A malformed stored credential, or
// a presented secret the scheme cannot check, simply does not verify.
package credential

import (
	"crypto/md5"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CleartextPrefix marks a reversible credential. Only cleartext credentials
// can answer CHAP challenges.
const CleartextPrefix = "{CLEARTEXT}"

// MinPasswordLength is the minimum length accepted by Hash.
const MinPasswordLength = 8

// ErrPasswordTooShort is returned when a password is too short to hash.
var ErrPasswordTooShort = errors.New("password must be at least 8 characters")

// ErrPasswordTooLong is returned for bcrypt passwords over 72 bytes.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes for bcrypt")

// Scheme identifies the format of a stored credential.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeArgon2id
	SchemeArgon2i
	SchemeBcrypt
	SchemeCleartext
)

func (s Scheme) String() string {
	switch s {
	case SchemeArgon2id:
		return "argon2id"
	case SchemeArgon2i:
		return "argon2i"
	case SchemeBcrypt:
		return "bcrypt"
	case SchemeCleartext:
		return "cleartext"
	default:
		return "unknown"
	}
}

// SchemeOf classifies a stored credential without validating it.
func SchemeOf(stored string) Scheme {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return SchemeArgon2id
	case strings.HasPrefix(stored, "$argon2i$"):
		return SchemeArgon2i
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return SchemeBcrypt
	case strings.HasPrefix(stored, CleartextPrefix):
		return SchemeCleartext
	default:
		return SchemeUnknown
	}
}

// Presented is a secret offered by a client.
type Presented interface {
	presented()
}

// Password is a plaintext password, as sent in an LDAP simple bind or
// recovered from a RADIUS User-Password attribute.
type Password string

func (Password) presented() {}

// CHAP is a CHAP-MD5 challenge response (RFC 1994 / RFC 2865 section 2.2).
type CHAP struct {
	ID        byte
	Challenge []byte
	Response  []byte
}

func (CHAP) presented() {}

// Verify checks a presented secret against a stored credential.
//
// Parameters:
//   - stored: The credential string from the user record
//   - presented: The secret offered by the client
//
// Returns:
//   - bool: true only when the stored credential is well formed and matches
func Verify(stored string, presented Presented) bool {
	if stored == "" || presented == nil {
		return false
	}

	switch p := presented.(type) {
	case Password:
		return verifyPassword(stored, string(p))
	case CHAP:
		return verifyCHAP(stored, p)
	case *CHAP:
		return p != nil && verifyCHAP(stored, *p)
	default:
		return false
	}
}

func verifyPassword(stored, password string) bool {
	switch SchemeOf(stored) {
	case SchemeArgon2id, SchemeArgon2i:
		h, err := parsePHC(stored)
		if err != nil {
			return false
		}
		return h.matches(password)
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	case SchemeCleartext:
		secret := strings.TrimPrefix(stored, CleartextPrefix)
		return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
	default:
		return false
	}
}

// verifyCHAP recomputes MD5(ID || secret || challenge). This needs the
// plaintext secret, so only cleartext credentials can succeed.
func verifyCHAP(stored string, c CHAP) bool {
	if SchemeOf(stored) != SchemeCleartext || len(c.Response) != md5.Size || len(c.Challenge) == 0 {
		return false
	}
	secret := strings.TrimPrefix(stored, CleartextPrefix)

	h := md5.New()
	h.Write([]byte{c.ID})
	h.Write([]byte(secret))
	h.Write(c.Challenge)
	return subtle.ConstantTimeCompare(h.Sum(nil), c.Response) == 1
}

// IsReversible reports whether the stored credential keeps the secret in a
// recoverable form.
func IsReversible(stored string) bool {
	return SchemeOf(stored) == SchemeCleartext
}

// Validate reports whether a stored credential is well formed. Loaders use
// it to warn operators early; Verify does not depend on it.
func Validate(stored string) error {
	switch SchemeOf(stored) {
	case SchemeArgon2id, SchemeArgon2i:
		_, err := parsePHC(stored)
		return err
	case SchemeBcrypt:
		if _, err := bcrypt.Cost([]byte(stored)); err != nil {
			return err
		}
		return nil
	case SchemeCleartext:
		return nil
	default:
		return ErrUnknownScheme
	}
}

// Redact returns a loggable description of a stored credential.
func Redact(stored string) string {
	if stored == "" {
		return "<none>"
	}
	return "<" + SchemeOf(stored).String() + ">"
}
