// Package cryptox implements credential hashing for stored user passwords.
//
// A credential hash is a self-describing string:
//
//	pbkdf2_sha256$<iterations>$<salt>$<key>
//	argon2id$<time>,<memoryKiB>,<threads>$<salt>$<key>
//
// Salt and key are base64url without padding. Verification re-derives the
// key with the embedded parameters and compares in constant time; any
// parsing problem makes it fail closed.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/zappro/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	AlgPBKDF2SHA256 = "pbkdf2_sha256"
	AlgArgon2ID     = "argon2id"

	DefaultIterations = 200_000
	MinIterations     = 100_000

	saltSize = 16
	keySize  = 32

	// Upper bounds applied to parameters read back from storage, so a
	// corrupted row cannot pin a CPU or exhaust memory.
	maxIterations   = 10_000_000
	maxArgonTime    = 16
	maxArgonMemory  = 256 * 1024 // KiB
	minStoredKeyLen = 16
	maxStoredKeyLen = 128
)

var ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")

var b64 = base64.RawURLEncoding

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultArgon2Params follows the RFC 9106 second recommended option.
var DefaultArgon2Params = Argon2Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

// Hasher hashes new passwords with one configured algorithm and verifies
// hashes produced by any supported algorithm.
type Hasher struct {
	algorithm  string
	iterations int
	argon      Argon2Params
}

type Option func(*Hasher)

func WithAlgorithm(alg string) Option {
	return func(h *Hasher) { h.algorithm = strings.ToLower(strings.TrimSpace(alg)) }
}

// WithIterations sets the PBKDF2 iteration count. Values below
// MinIterations are raised to it.
func WithIterations(n int) Option {
	return func(h *Hasher) { h.iterations = max(n, MinIterations) }
}

func WithArgon2Params(p Argon2Params) Option {
	return func(h *Hasher) { h.argon = p }
}

// NewHasher returns a PBKDF2-SHA256 hasher with DefaultIterations unless
// options say otherwise.
func NewHasher(opts ...Option) (*Hasher, error) {
	h := &Hasher{
		algorithm:  AlgPBKDF2SHA256,
		iterations: DefaultIterations,
		argon:      DefaultArgon2Params,
	}
	for _, opt := range opts {
		opt(h)
	}

	switch h.algorithm {
	case AlgPBKDF2SHA256, AlgArgon2ID:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, h.algorithm)
	}
	if h.argon.Time == 0 || h.argon.MemoryKiB == 0 || h.argon.Threads == 0 {
		return nil, fmt.Errorf("%w: argon2 parameters must be positive", common.ErrorValidation)
	}
	if h.argon.Time > maxArgonTime || h.argon.MemoryKiB > maxArgonMemory {
		return nil, fmt.Errorf("%w: argon2 parameters exceed time %d or memory %d KiB",
			common.ErrorValidation, maxArgonTime, maxArgonMemory)
	}

	return h, nil
}

// Algorithm reports the tag used for new hashes.
func (h *Hasher) Algorithm() string { return h.algorithm }

// Hash derives a credential hash for password with a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	salt := common.GenerateRandByteArray(saltSize)

	switch h.algorithm {
	case AlgArgon2ID:
		p := h.argon
		key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, keySize)
		return fmt.Sprintf("%s$%d,%d,%d$%s$%s", AlgArgon2ID, p.Time, p.MemoryKiB, p.Threads,
			b64.EncodeToString(salt), b64.EncodeToString(key)), nil
	case AlgPBKDF2SHA256:
		key := pbkdf2.Key([]byte(password), salt, h.iterations, keySize, sha256.New)
		return fmt.Sprintf("%s$%d$%s$%s", AlgPBKDF2SHA256, h.iterations,
			b64.EncodeToString(salt), b64.EncodeToString(key)), nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}

// Verify reports whether password matches stored. Malformed or unknown
// hashes yield false.
func (h *Hasher) Verify(password, stored string) bool {
	parsed, err := parse(stored)
	if err != nil {
		return false
	}

	return verifyKey(parsed.derive([]byte(password)), parsed.key)
}

// verifyKey compares a derived key against the stored one and zeroes the
// derived key afterwards.
func verifyKey(candidate, key []byte) bool {
	ok := subtle.ConstantTimeCompare(candidate, key) == 1
	common.WipeByteArray(candidate)
	return ok
}

// NeedsRehash reports whether stored was produced with a different
// algorithm or weaker parameters than the hasher currently uses.
func (h *Hasher) NeedsRehash(stored string) bool {
	parsed, err := parse(stored)
	if err != nil {
		return true
	}
	if parsed.algorithm != h.algorithm {
		return true
	}

	switch parsed.algorithm {
	case AlgPBKDF2SHA256:
		return parsed.iterations < h.iterations
	case AlgArgon2ID:
		return parsed.argon.Time < h.argon.Time ||
			parsed.argon.MemoryKiB < h.argon.MemoryKiB ||
			parsed.argon.Threads < h.argon.Threads
	}
	return true
}

type credentialHash struct {
	algorithm  string
	iterations int
	argon      Argon2Params
	salt       []byte
	key        []byte
}

func (c *credentialHash) derive(password []byte) []byte {
	if c.algorithm == AlgArgon2ID {
		return argon2.IDKey(password, c.salt, c.argon.Time, c.argon.MemoryKiB, c.argon.Threads, uint32(len(c.key)))
	}
	return pbkdf2.Key(password, c.salt, c.iterations, len(c.key), sha256.New)
}

var errMalformedHash = errors.New("malformed credential hash")

func parse(stored string) (*credentialHash, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 4 {
		return nil, errMalformedHash
	}

	c := &credentialHash{algorithm: parts[0]}

	switch c.algorithm {
	case AlgPBKDF2SHA256:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 || n > maxIterations {
			return nil, errMalformedHash
		}
		c.iterations = n
	case AlgArgon2ID:
		p, err := parseArgon2Params(parts[1])
		if err != nil {
			return nil, err
		}
		c.argon = p
	default:
		return nil, ErrUnsupportedAlgorithm
	}

	salt, err := b64.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return nil, errMalformedHash
	}
	key, err := b64.DecodeString(parts[3])
	if err != nil || len(key) < minStoredKeyLen || len(key) > maxStoredKeyLen {
		return nil, errMalformedHash
	}
	c.salt, c.key = salt, key

	return c, nil
}

func parseArgon2Params(s string) (Argon2Params, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return Argon2Params{}, errMalformedHash
	}

	t, err1 := strconv.ParseUint(fields[0], 10, 32)
	m, err2 := strconv.ParseUint(fields[1], 10, 32)
	p, err3 := strconv.ParseUint(fields[2], 10, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return Argon2Params{}, errMalformedHash
	}
	if t == 0 || t > maxArgonTime || m == 0 || m > maxArgonMemory || p == 0 {
		return Argon2Params{}, errMalformedHash
	}

	return Argon2Params{Time: uint32(t), MemoryKiB: uint32(m), Threads: uint8(p)}, nil
}
