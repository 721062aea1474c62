// Package auth issues and verifies the API's signed tokens.
//
// Tokens are RS256 JWTs with a fixed payload {sub, exp, type}. Access and
// refresh tokens share the format and differ only in the type claim and
// lifetime.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Kind tags a token as access or refresh.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"

	// KindAny disables the kind check in Verify.
	KindAny Kind = ""
)

const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	TokenTypeBearer = "bearer"
)

// Claims is the token payload. Field order fixes the serialized key order.
type Claims struct {
	Subject   string           `json:"sub"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	Kind      Kind             `json:"type"`
}

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c *Claims) GetIssuer() (string, error)                   { return "", nil }
func (c *Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c *Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Config holds token lifetimes. Zero values fall back to the defaults.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service signs and verifies tokens with the provider's key pair.
type Service struct {
	keys       *KeyProvider
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      timex.Clock
	logger     logging.Logger
}

type Option func(*Service)

func WithClock(c timex.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(keys *KeyProvider, cfg Config, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		keys:       keys,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		logger:     logger.With("module", "tokens"),
	}
	if s.accessTTL <= 0 {
		s.accessTTL = DefaultAccessTTL
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token for subject that expires ttl from now. A negative
// ttl yields an already expired token.
func (s *Service) Issue(subject string, kind Kind, ttl time.Duration) (string, error) {
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	pair, err := s.keys.KeyPair()
	if err != nil {
		return "", fmt.Errorf("signing key unavailable: %w", err)
	}

	claims := &Claims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(s.clock.Now().Add(ttl)),
		Kind:      kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(pair.Private)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) IssueAccess(subject string) (string, error) {
	return s.Issue(subject, KindAccess, s.accessTTL)
}

func (s *Service) IssueRefresh(subject string) (string, error) {
	return s.Issue(subject, KindRefresh, s.refreshTTL)
}

func (s *Service) IssuePair(subject string) (*TokenPair, error) {
	access, err := s.IssueAccess(subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefresh(subject)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: TokenTypeBearer}, nil
}

// Verify checks structure, signature, expiry and kind, in that order. The
// returned error is always a *TokenError. A token without a type claim
// counts as an access token.
func (s *Service) Verify(token string, expected Kind) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, newTokenError(ReasonMalformed, nil)
	}

	pair, err := s.keys.KeyPair()
	if err != nil {
		return nil, newTokenError(ReasonInvalidSignature, err)
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return pair.Public, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, classify(err)
	}

	if claims.Subject == "" {
		return nil, newTokenError(ReasonMalformed, nil)
	}
	if claims.Kind == "" {
		claims.Kind = KindAccess
	}
	if expected != KindAny && claims.Kind != expected {
		return nil, newTokenError(ReasonWrongKind, fmt.Errorf("got %s token, want %s", claims.Kind, expected))
	}

	return claims, nil
}

func classify(err error) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return newTokenError(ReasonInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return newTokenError(ReasonExpired, err)
	default:
		return newTokenError(ReasonMalformed, err)
	}
}
