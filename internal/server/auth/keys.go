package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

const ephemeralKeyBits = 2048

// ErrEphemeralKeyRefused is returned when no key material is configured and
// the provider runs in strict mode.
var ErrEphemeralKeyRefused = errors.New("signing key not configured and ephemeral keys are disabled")

// KeyConfig describes where the RSA signing pair comes from. Inline values
// win over paths. Inline PEM may use literal "\n" sequences so it fits in a
// single environment variable.
type KeyConfig struct {
	PrivateKeyPEM  string
	PrivateKeyPath string
	PublicKeyPEM   string
	PublicKeyPath  string

	// RequireConfigured turns the development fallback into an error.
	RequireConfigured bool
}

// KeyPair is the process-wide signing pair.
type KeyPair struct {
	Private   *rsa.PrivateKey
	Public    *rsa.PublicKey
	Ephemeral bool
}

// KeyProvider resolves the key pair once and hands out the same pair for
// the rest of the process lifetime.
type KeyProvider struct {
	cfg    KeyConfig
	logger logging.Logger

	once sync.Once
	pair *KeyPair
	err  error
}

func NewKeyProvider(cfg KeyConfig, logger logging.Logger) *KeyProvider {
	return &KeyProvider{cfg: cfg, logger: logger.With("module", "keys")}
}

// NewStaticKeyProvider wraps an already loaded pair.
func NewStaticKeyProvider(pair *KeyPair) *KeyProvider {
	p := &KeyProvider{logger: logging.Nop{}, pair: pair}
	p.once.Do(func() {})
	return p
}

// KeyPair returns the resolved pair, resolving it on first use.
func (p *KeyProvider) KeyPair() (*KeyPair, error) {
	p.once.Do(func() {
		p.pair, p.err = p.resolve(context.Background())
	})
	return p.pair, p.err
}

func (p *KeyProvider) resolve(ctx context.Context) (*KeyPair, error) {
	pair := &KeyPair{}

	if pemBytes := p.load(ctx, "private", p.cfg.PrivateKeyPEM, p.cfg.PrivateKeyPath); pemBytes != nil {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			p.logger.Warn(ctx, "configured private key is not a valid RSA PEM; ignoring it", "error", err)
		} else {
			pair.Private = key
		}
	}

	if pemBytes := p.load(ctx, "public", p.cfg.PublicKeyPEM, p.cfg.PublicKeyPath); pemBytes != nil {
		key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
		if err != nil {
			p.logger.Warn(ctx, "configured public key is not a valid RSA PEM; ignoring it", "error", err)
		} else {
			pair.Public = key
		}
	}

	if pair.Private == nil {
		if p.cfg.RequireConfigured {
			return nil, ErrEphemeralKeyRefused
		}
		p.logger.Warn(ctx, "JWT private key not configured; generating ephemeral RSA key pair for local development")
		key, err := rsa.GenerateKey(rand.Reader, ephemeralKeyBits)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral key: %w", err)
		}
		pair.Private = key
		pair.Ephemeral = true
		if pair.Public != nil {
			p.logger.Warn(ctx, "configured public key ignored because the private key is ephemeral")
		}
		pair.Public = &key.PublicKey
	}

	if pair.Public == nil {
		pair.Public = &pair.Private.PublicKey
	} else if !pair.Public.Equal(&pair.Private.PublicKey) {
		p.logger.Warn(ctx, "configured public key does not match the private key; tokens issued here will not verify")
	}

	return pair, nil
}

// load returns PEM bytes from the inline value or the file, or nil. Read
// errors are logged and treated as "not configured".
func (p *KeyProvider) load(ctx context.Context, which, inline, path string) []byte {
	if v := strings.TrimSpace(inline); v != "" {
		return normalizePEM(v)
	}
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(expandHome(path))
	if err != nil {
		p.logger.Warn(ctx, "unable to read JWT key file; falling back", "key", which, "path", path, "error", err)
		return nil
	}
	return b
}

func normalizePEM(v string) []byte {
	return []byte(strings.ReplaceAll(v, `\n`, "\n"))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// MarshalPrivateKeyPEM encodes key as a PKCS#8 "PRIVATE KEY" block.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidKeyMaterial, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes key as a PKIX "PUBLIC KEY" block.
func MarshalPublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidKeyMaterial, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// GenerateKeyPair creates a fresh RSA pair of the given size.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: key, Public: &key.PublicKey}, nil
}
