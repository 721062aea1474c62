// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, token refresh and
// password changes on top of the password hasher and the token service.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/zappro/internal/common"
	"github.com/dmitrijs2005/zappro/internal/cryptox"
	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/dmitrijs2005/zappro/internal/server/auth"
	"github.com/dmitrijs2005/zappro/internal/server/models"
	"github.com/dmitrijs2005/zappro/internal/server/repositories/users"
)

const MinPasswordLength = 8

// TokenObserver is told about every token verification. result is "ok" or
// the rejection reason.
type TokenObserver interface {
	RecordTokenVerification(kind, result string)
}

type UserService struct {
	users    users.Repository
	tokens   *auth.Service
	hasher   *cryptox.Hasher
	logger   logging.Logger
	observer TokenObserver

	// dummyHash is verified for unknown emails so login timing does not
	// reveal whether an account exists.
	dummyHash string
}

type Option func(*UserService)

func WithTokenObserver(o TokenObserver) Option {
	return func(s *UserService) { s.observer = o }
}

func NewUserService(repo users.Repository, tokens *auth.Service, hasher *cryptox.Hasher, logger logging.Logger, opts ...Option) (*UserService, error) {
	if logger == nil {
		logger = logging.Nop{}
	}

	secret, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	s := &UserService{
		users:     repo,
		tokens:    tokens,
		hasher:    hasher,
		logger:    logger.With("module", "users"),
		dummyHash: dummy,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	return email, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, MinPasswordLength)
	}
	return nil
}

// Register creates a user. An empty role registers an operador.
func (s *UserService) Register(ctx context.Context, email, name, password, role string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	u, err := s.users.Create(ctx, &models.User{Email: email, Name: name, PasswordHash: hash, Role: r})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		s.logger.Error(ctx, "create user failed", "error", err)
		return nil, common.ErrorInternal
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID, "role", string(u.Role))
	return u, nil
}

// Login checks credentials and mints an access/refresh pair. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, *auth.TokenPair, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		s.hasher.Verify(password, s.dummyHash)
		return nil, nil, common.ErrorUnauthorized
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "lookup user failed", "error", err)
		return nil, nil, common.ErrorInternal
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, nil, common.ErrorUnauthorized
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}

	pair, err := s.tokens.IssuePair(u.ID)
	if err != nil {
		s.logger.Error(ctx, "issue tokens failed", "error", err)
		return nil, nil, common.ErrorInternal
	}
	return u, pair, nil
}

// rehash upgrades a stored hash after a successful login. Failures only
// cost the upgrade, never the login.
func (s *UserService) rehash(ctx context.Context, u *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn(ctx, "rehash failed", "user_id", u.ID, "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		s.logger.Warn(ctx, "store rehash failed", "user_id", u.ID, "error", err)
		return
	}
	u.PasswordHash = hash
	s.logger.Info(ctx, "password hash upgraded", "user_id", u.ID, "algorithm", s.hasher.Algorithm())
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is returned unchanged.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.verify(ctx, refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}

	if _, err := s.lookupSubject(ctx, claims.Subject); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(claims.Subject)
	if err != nil {
		s.logger.Error(ctx, "issue access token failed", "error", err)
		return nil, common.ErrorInternal
	}
	return &auth.TokenPair{AccessToken: access, RefreshToken: refreshToken, TokenType: auth.TokenTypeBearer}, nil
}

// Authenticate resolves the user behind an access token.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.verify(ctx, accessToken, auth.KindAccess)
	if err != nil {
		return nil, err
	}
	return s.lookupSubject(ctx, claims.Subject)
}

// ChangePassword replaces the password of userID after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.logger.Error(ctx, "lookup user failed", "error", err)
		return common.ErrorInternal
	}

	if !s.hasher.Verify(oldPassword, u.PasswordHash) {
		return common.ErrorUnauthorized
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return common.ErrorInternal
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		s.logger.Error(ctx, "update password failed", "user_id", u.ID, "error", err)
		return common.ErrorInternal
	}

	s.logger.Info(ctx, "password changed", "user_id", u.ID)
	return nil
}

// RequireRole returns common.ErrorForbidden unless u holds one of roles.
func RequireRole(u *models.User, roles ...models.Role) error {
	if u == nil || !u.HasRole(roles...) {
		return common.ErrorForbidden
	}
	return nil
}

func (s *UserService) verify(ctx context.Context, token string, kind auth.Kind) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token, kind)
	if err != nil {
		reason := auth.ReasonOf(err)
		s.logger.Debug(ctx, "token rejected", "kind", string(kind), "reason", string(reason))
		s.observe(kind, string(reason))
		return nil, err
	}
	s.observe(kind, "ok")
	return claims, nil
}

func (s *UserService) observe(kind auth.Kind, result string) {
	if s.observer != nil {
		s.observer.RecordTokenVerification(string(kind), result)
	}
}

// lookupSubject maps a verified subject to its user. A subject whose user is
// gone is treated like an invalid token.
func (s *UserService) lookupSubject(ctx context.Context, subject string) (*models.User, error) {
	u, err := s.users.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		s.logger.Error(ctx, "lookup user failed", "error", err)
		return nil, common.ErrorInternal
	}
	return u, nil
}
