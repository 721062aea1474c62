package cryptox

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fastHasher keeps property runs quick; production minimums are covered
// separately.
func fastHasher(alg string) *Hasher {
	return &Hasher{
		algorithm:  alg,
		iterations: 1_000,
		argon:      Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1},
	}
}

func TestNewHasher_Defaults(t *testing.T) {
	h, err := NewHasher()
	require.NoError(t, err)

	assert.Equal(t, AlgPBKDF2SHA256, h.Algorithm())
	assert.Equal(t, DefaultIterations, h.iterations)
}

func TestNewHasher_Options(t *testing.T) {
	h, err := NewHasher(WithIterations(10), WithAlgorithm(" PBKDF2_SHA256 "))
	require.NoError(t, err)
	assert.Equal(t, MinIterations, h.iterations, "iterations are clamped to the minimum")

	_, err = NewHasher(WithAlgorithm("md5"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewHasher(WithAlgorithm(AlgArgon2ID), WithArgon2Params(Argon2Params{}))
	assert.Error(t, err)
}

func TestHash_Format(t *testing.T) {
	h, err := NewHasher()
	require.NoError(t, err)

	stored, err := h.Hash("secret123")
	require.NoError(t, err)

	parts := strings.Split(stored, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "pbkdf2_sha256", parts[0])
	assert.Equal(t, "200000", parts[1])

	salt, err := b64.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, salt, saltSize)

	key, err := b64.DecodeString(parts[3])
	require.NoError(t, err)
	assert.Len(t, key, keySize)

	assert.True(t, h.Verify("secret123", stored))
	assert.False(t, h.Verify("secret124", stored))
}

func TestHash_FreshSaltEachTime(t *testing.T) {
	h := fastHasher(AlgPBKDF2SHA256)

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, h.Verify("same", a))
	assert.True(t, h.Verify("same", b))
}

func TestVerify_KnownPBKDF2Vector(t *testing.T) {
	// PBKDF2-HMAC-SHA256("password", "salt", 4096, 32)
	key, err := hex.DecodeString("c5e478d59288c841aa530db6845c4c8d962893a001ce4e11a4963873aa98134a")
	require.NoError(t, err)

	stored := "pbkdf2_sha256$4096$" + b64.EncodeToString([]byte("salt")) + "$" + b64.EncodeToString(key)

	h := fastHasher(AlgPBKDF2SHA256)
	assert.True(t, h.Verify("password", stored))
	assert.False(t, h.Verify("Password", stored))
}

func TestVerify_Argon2(t *testing.T) {
	h := fastHasher(AlgArgon2ID)

	stored, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "argon2id$1,64,1$"))

	assert.True(t, h.Verify("correct horse", stored))
	assert.False(t, h.Verify("battery staple", stored))

	// A PBKDF2 hasher still understands argon2id hashes.
	assert.True(t, fastHasher(AlgPBKDF2SHA256).Verify("correct horse", stored))
}

func TestVerify_MalformedFailsClosed(t *testing.T) {
	h := fastHasher(AlgPBKDF2SHA256)
	good, err := h.Hash("pw")
	require.NoError(t, err)
	parts := strings.Split(good, "$")

	tests := map[string]string{
		"empty":              "",
		"plain text":         "pw",
		"too few parts":      "pbkdf2_sha256$1000$abc",
		"too many parts":     good + "$extra",
		"unknown algorithm":  "md5$1000$" + parts[2] + "$" + parts[3],
		"non numeric iters":  "pbkdf2_sha256$many$" + parts[2] + "$" + parts[3],
		"zero iters":         "pbkdf2_sha256$0$" + parts[2] + "$" + parts[3],
		"negative iters":     "pbkdf2_sha256$-5$" + parts[2] + "$" + parts[3],
		"absurd iters":       "pbkdf2_sha256$999999999$" + parts[2] + "$" + parts[3],
		"bad salt encoding":  "pbkdf2_sha256$1000$!!!$" + parts[3],
		"empty salt":         "pbkdf2_sha256$1000$$" + parts[3],
		"bad key encoding":   "pbkdf2_sha256$1000$" + parts[2] + "$%%%",
		"short key":          "pbkdf2_sha256$1000$" + parts[2] + "$" + b64.EncodeToString([]byte("short")),
		"argon bad params":   "argon2id$1,64$" + parts[2] + "$" + parts[3],
		"argon zero threads": "argon2id$1,64,0$" + parts[2] + "$" + parts[3],
		"argon huge memory":  "argon2id$1,99999999,1$" + parts[2] + "$" + parts[3],
		"argon over 256MiB":  "argon2id$1,262145,1$" + parts[2] + "$" + parts[3],
	}

	for name, stored := range tests {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify("pw", stored))
			})
		})
	}
}

func TestParseArgon2Params_MemoryCap(t *testing.T) {
	p, err := parseArgon2Params("1,262144,1")
	require.NoError(t, err)
	assert.Equal(t, uint32(256*1024), p.MemoryKiB)

	_, err = parseArgon2Params("1,262145,1")
	assert.ErrorIs(t, err, errMalformedHash)
}

func TestNewHasher_RejectsArgon2ParamsAboveCap(t *testing.T) {
	_, err := NewHasher(WithAlgorithm(AlgArgon2ID),
		WithArgon2Params(Argon2Params{Time: 1, MemoryKiB: 512 * 1024, Threads: 1}))
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = NewHasher(WithAlgorithm(AlgArgon2ID),
		WithArgon2Params(Argon2Params{Time: 17, MemoryKiB: 64, Threads: 1}))
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestVerifyKey_WipesCandidate(t *testing.T) {
	key := []byte("0123456789abcdef")

	match := append([]byte(nil), key...)
	assert.True(t, verifyKey(match, key))
	assert.Equal(t, make([]byte, len(key)), match)
	assert.Equal(t, []byte("0123456789abcdef"), key, "stored key untouched")

	mismatch := []byte("fedcba9876543210")
	assert.False(t, verifyKey(mismatch, key))
	assert.Equal(t, make([]byte, len(key)), mismatch)
}

func TestNeedsRehash(t *testing.T) {
	weak := fastHasher(AlgPBKDF2SHA256)
	stored, err := weak.Hash("pw")
	require.NoError(t, err)

	strong := fastHasher(AlgPBKDF2SHA256)
	strong.iterations = 2_000
	argon := fastHasher(AlgArgon2ID)

	assert.False(t, weak.NeedsRehash(stored))
	assert.True(t, strong.NeedsRehash(stored))
	assert.True(t, argon.NeedsRehash(stored))
	assert.True(t, weak.NeedsRehash("garbage"))

	argonStored, err := argon.Hash("pw")
	require.NoError(t, err)
	assert.False(t, argon.NeedsRehash(argonStored))

	heavier := fastHasher(AlgArgon2ID)
	heavier.argon.MemoryKiB = 128
	assert.True(t, heavier.NeedsRehash(argonStored))
}

func TestHashVerify_Properties(t *testing.T) {
	h := fastHasher(AlgPBKDF2SHA256)

	rapid.Check(t, func(t *rapid.T) {
		p1 := rapid.String().Draw(t, "p1")
		p2 := rapid.String().Draw(t, "p2")

		stored, err := h.Hash(p1)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if !h.Verify(p1, stored) {
			t.Fatalf("verify(p, hash(p)) must hold")
		}
		if p1 != p2 && h.Verify(p2, stored) {
			t.Fatalf("verify(%q, hash(%q)) must fail", p2, p1)
		}
	})
}

func TestVerify_ArbitraryInputNeverPanics(t *testing.T) {
	h := fastHasher(AlgPBKDF2SHA256)

	rapid.Check(t, func(t *rapid.T) {
		stored := rapid.String().Draw(t, "stored")
		if h.Verify("pw", stored) {
			t.Fatalf("arbitrary string %q verified", stored)
		}
	})
}
