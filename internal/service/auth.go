// Package service contains application services for authentication and
// configuration management.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/akulinin/pomosync/internal/crypto"
	"github.com/akulinin/pomosync/internal/errs"
	"github.com/akulinin/pomosync/internal/limiter"
	"github.com/akulinin/pomosync/internal/model"
	"github.com/akulinin/pomosync/internal/repository"
)

// RegisterInput carries the fields a new account needs.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	QuickAccess []string
}

// AuthService defines account and session operations.
type AuthService interface {
	// Register creates an account and returns a signed session token.
	Register(ctx context.Context, in RegisterInput) (token string, user model.User, err error)
	// Login applies rate limiting and authenticates the user.
	Login(ctx context.Context, username, password, ip string) (token string, user model.User, err error)
	// Me loads the account behind a session.
	Me(ctx context.Context, userID uuid.UUID) (model.User, error)
	// SetQuickAccess replaces the quick-access configuration id set.
	SetQuickAccess(ctx context.Context, userID uuid.UUID, configIDs []string) ([]string, error)
	// ParseToken validates a session token and returns its subject.
	ParseToken(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates an account with a per-user salt and issues a token.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (string, model.User, error) {
	if in.Username == "" || in.Password == "" {
		return "", model.User{}, fmt.Errorf("%w: username and password are required", errs.ErrValidation)
	}
	if in.Email == "" {
		return "", model.User{}, fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	if dup, ok := model.DuplicateQuickAccessID(in.QuickAccess); ok {
		return "", model.User{}, fmt.Errorf("%w: duplicate quick access id %s", errs.ErrValidation, dup)
	}
	if len(in.QuickAccess) == 0 {
		in.QuickAccess = model.DefaultQuickAccessIDs()
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return "", model.User{}, err
	}
	hash, salt, err := pkgcrypto.HashPassword(in.Password)
	if err != nil {
		return "", model.User{}, err
	}

	a := &model.Account{
		ID:          uid,
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		PwdHash:     hash,
		Salt:        salt,
		QuickAccess: in.QuickAccess,
	}
	if err := s.users.Create(ctx, a); err != nil {
		return "", model.User{}, err
	}

	token, err := s.issueAccessToken(uid)
	if err != nil {
		return "", model.User{}, err
	}
	return token, a.Public(), nil
}

// Login authenticates with rate limiting by (username, ip).
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (string, model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return "", model.User{}, err
	}
	if !allowed {
		return "", model.User{}, errs.ErrRateLimited
	}

	a, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword(password, a.Salt, a.PwdHash) {
		// Record the failure; a lookup error is masked as unauthorized so
		// account existence never leaks.
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return "", model.User{}, errs.ErrRateLimited
		}
		return "", model.User{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	_ = s.lim.Success(ctx, username, ipHash)

	token, err := s.issueAccessToken(a.ID)
	if err != nil {
		return "", model.User{}, err
	}
	return token, a.Public(), nil
}

// Me loads the account behind a session.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (model.User, error) {
	a, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	return a.Public(), nil
}

// SetQuickAccess validates and persists the quick-access id set.
func (s *AuthServiceImpl) SetQuickAccess(ctx context.Context, userID uuid.UUID, configIDs []string) ([]string, error) {
	if dup, ok := model.DuplicateQuickAccessID(configIDs); ok {
		return nil, fmt.Errorf("%w: duplicate quick access id %s", errs.ErrValidation, dup)
	}
	if err := s.users.SetQuickAccess(ctx, userID, configIDs); err != nil {
		return nil, err
	}
	return configIDs, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
}

// ParseToken validates an HS256 session token and returns its subject.
func (s *AuthServiceImpl) ParseToken(token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signKey, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, errs.ErrUnauthorized
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}
