package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnknownScheme is returned by Validate for unrecognized credentials.
	ErrUnknownScheme = errors.New("unknown credential scheme")

	// ErrMalformedHash is returned when a PHC string cannot be parsed.
	ErrMalformedHash = errors.New("malformed argon2 hash")

	// ErrIncompatibleVersion is returned for argon2 versions other than 0x13.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Upper bounds on parameters accepted from stored hashes, so a hostile record
// cannot make a single bind allocate unbounded memory.
const (
	maxMemoryKiB = 1 << 20
	maxTime      = 64
	maxKeyLen    = 128
)

// Argon2Params are the tunable argon2id parameters used by Hash.
type Argon2Params struct {
	Memory  uint32 // KiB
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP minimum recommendation for argon2id.
var DefaultArgon2Params = Argon2Params{
	Memory:  19456,
	Time:    2,
	Threads: 1,
	SaltLen: 16,
	KeyLen:  32,
}

type phcHash struct {
	variant string
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// parsePHC parses $argon2{i,id}$v=19$m=..,t=..,p=..$salt$hash. The version
// segment may be omitted, which denotes version 0x10 and is rejected.
func parsePHC(s string) (*phcHash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}

	h := &phcHash{variant: parts[1]}
	if h.variant != "argon2id" && h.variant != "argon2i" {
		return nil, ErrMalformedHash
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, ErrMalformedHash
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrMalformedHash
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %s", ErrMalformedHash, k)
		}
		switch k {
		case "m":
			h.memory = uint32(n)
		case "t":
			h.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
			}
			h.threads = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %s", ErrMalformedHash, k)
		}
	}

	if h.memory == 0 || h.memory > maxMemoryKiB || h.time == 0 || h.time > maxTime || h.threads == 0 {
		return nil, fmt.Errorf("%w: parameters out of range", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.key) == 0 || len(h.key) > maxKeyLen {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return h, nil
}

func (h *phcHash) matches(password string) bool {
	keyLen := uint32(len(h.key))

	var derived []byte
	if h.variant == "argon2id" {
		derived = argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, keyLen)
	} else {
		derived = argon2.Key([]byte(password), h.salt, h.time, h.memory, h.threads, keyLen)
	}
	return subtle.ConstantTimeCompare(derived, h.key) == 1
}

func (h *phcHash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.variant, argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

// Hash creates an argon2id PHC string with DefaultArgon2Params.
func Hash(password string) (string, error) {
	return HashWithParams(password, DefaultArgon2Params)
}

// HashWithParams creates an argon2id PHC string with custom parameters.
func HashWithParams(password string, p Argon2Params) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	h := &phcHash{
		variant: "argon2id",
		memory:  p.Memory,
		time:    p.Time,
		threads: p.Threads,
		salt:    salt,
	}
	h.key = argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return h.String(), nil
}

// HashBcrypt creates a bcrypt hash, for deployments sharing records with
// tools that only understand bcrypt.
func HashBcrypt(password string, cost int) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
