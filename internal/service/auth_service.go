package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"templatedev/api/internal/apperr"
	"templatedev/api/internal/ids"
	"templatedev/api/internal/models"
	"templatedev/api/internal/repository"
	"templatedev/api/internal/security"
	"templatedev/api/internal/validation"
)

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type RefreshTokenStore interface {
	Create(ctx context.Context, token models.RefreshToken) error
	FindByToken(ctx context.Context, token string) (models.RefreshToken, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByUserAndToken(ctx context.Context, userID, token string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type TokenSigner interface {
	Sign(subject, email, role, tokenID string) (string, time.Time, error)
	Verify(token string) (*security.Claims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
}

type AuthService struct {
	users   UserStore
	tokens  RefreshTokenStore
	access  TokenSigner
	refresh TokenSigner
	hasher  PasswordHasher
	now     func() time.Time
	log     zerolog.Logger

	dummyOnce sync.Once
	dummyHash string
}

type AuthOption func(*AuthService)

// WithClock replaces time.Now for stored expiry checks and timestamps.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		s.now = now
	}
}

func NewAuthService(
	users UserStore,
	tokens RefreshTokenStore,
	access TokenSigner,
	refresh TokenSigner,
	hasher PasswordHasher,
	log zerolog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:   users,
		tokens:  tokens,
		access:  access,
		refresh: refresh,
		hasher:  hasher,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterInput struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,maxbytes=72"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=100"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.TokenPair, error) {
	input.Email = normalizeEmail(input.Email)
	if input.Name != nil {
		input.Name = trimName(*input.Name)
	}
	if err := validation.Struct(input); err != nil {
		return models.TokenPair{}, err
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.TokenPair{}, apperr.ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return models.TokenPair{}, err
	}

	now := s.now()
	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		Name:         input.Name,
		Role:         models.UserRoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Past this point the writes finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return models.TokenPair{}, apperr.ErrEmailTaken
		}
		return models.TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return models.TokenPair{}, err
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return pair, nil
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.TokenPair, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validation.Struct(input); err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.compareDummy(input.Password)
			return models.TokenPair{}, apperr.ErrInvalidCredentials
		}
		return models.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return models.TokenPair{}, apperr.ErrInvalidCredentials
	}
	if !ok {
		return models.TokenPair{}, apperr.ErrInvalidCredentials
	}

	return s.issueTokens(context.WithoutCancel(ctx), user)
}

// Refresh redeems a refresh token exactly once. The stored row is deleted
// before the replacement pair is issued, so a failure after the delete logs
// the session out instead of leaving the old token redeemable.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	claims, err := s.refresh.Verify(refreshToken)
	if err != nil {
		s.log.Debug().Err(err).Msg("refresh token rejected by signer")
		return models.TokenPair{}, apperr.ErrInvalidRefreshToken
	}

	ctx = context.WithoutCancel(ctx)

	record, err := s.tokens.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return models.TokenPair{}, apperr.ErrInvalidRefreshToken
		}
		return models.TokenPair{}, fmt.Errorf("find refresh token: %w", err)
	}

	if record.ExpiredAt(s.now()) {
		if _, err := s.tokens.DeleteByID(ctx, record.ID); err != nil {
			s.log.Warn().Err(err).Str("token_id", record.ID).Msg("delete expired refresh token failed")
		}
		return models.TokenPair{}, apperr.ErrInvalidRefreshToken
	}
	if record.UserID != claims.Subject {
		return models.TokenPair{}, apperr.ErrInvalidRefreshToken
	}

	removed, err := s.tokens.DeleteByID(ctx, record.ID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("delete refresh token: %w", err)
	}
	if !removed {
		// another request redeemed it first
		return models.TokenPair{}, apperr.ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.TokenPair{}, apperr.ErrInvalidRefreshToken
		}
		return models.TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	return s.issueTokens(ctx, user)
}

// Logout revokes the caller's refresh token. Revoking an unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	removed, err := s.tokens.DeleteByUserAndToken(context.WithoutCancel(ctx), userID, refreshToken)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.log.Debug().Str("user_id", userID).Int64("revoked", removed).Msg("logout")
	return nil
}

// ValidateAccessToken decodes the caller identity without touching the store.
func (s *AuthService) ValidateAccessToken(token string) (models.AuthContext, error) {
	claims, err := s.access.Verify(token)
	if err != nil {
		return models.AuthContext{}, apperr.ErrInvalidAccessToken
	}
	role := models.UserRole(claims.Role)
	if !role.Valid() {
		return models.AuthContext{}, apperr.ErrInvalidAccessToken
	}
	return models.AuthContext{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   role,
	}, nil
}

// Me loads the current user record for an authenticated caller.
func (s *AuthService) Me(ctx context.Context, caller models.AuthContext) (models.PublicUser, error) {
	user, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.PublicUser{}, userNotFound(caller.UserID)
		}
		return models.PublicUser{}, fmt.Errorf("load user: %w", err)
	}
	return user.Public(), nil
}

// SweepExpired drops refresh tokens whose stored expiry has passed.
func (s *AuthService) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return removed, nil
}

// EnsureAdmin creates an ADMIN account for email unless one already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if err := validation.Struct(RegisterInput{Email: email, Password: password}); err != nil {
		return fmt.Errorf("admin seed: %w", err)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("find admin: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	now := s.now()
	admin := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, repository.ErrEmailTaken) {
		return fmt.Errorf("create admin: %w", err)
	}

	s.log.Info().Str("email", email).Msg("admin account ensured")
	return nil
}

// issueTokens signs both tokens and persists the refresh row. Nothing is
// returned unless the row is stored.
func (s *AuthService) issueTokens(ctx context.Context, user models.User) (models.TokenPair, error) {
	role := string(user.Role)

	accessToken, _, err := s.access.Sign(user.ID, user.Email, role, "")
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	tokenID := ids.New()
	refreshToken, expiresAt, err := s.refresh.Sign(user.ID, user.Email, role, tokenID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	record := models.RefreshToken{
		ID:        tokenID,
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return models.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Public(),
	}, nil
}

// compareDummy runs one hash comparison for a login against an unknown
// email, so it costs the same as a wrong password.
func (s *AuthService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("unregistered-account")
		if err != nil {
			s.log.Warn().Err(err).Msg("dummy password hash unavailable")
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// trimName trims a display name. A blank name means no name.
func trimName(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userNotFound(id string) error {
	return apperr.NotFound(fmt.Sprintf("User with ID %s not found", id))
}
