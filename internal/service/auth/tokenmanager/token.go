package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/repository"
)

// Token classes embedded in the 'type' claim
// Each class is signed with its own secret, so a leaked access secret
// can't mint refresh tokens and vice versa
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
)

type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	Type   string    `json:"type"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secrets to sign each token class
	// Both required to be set
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type TokenManager struct {
	accessSecret  string
	refreshSecret string

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	// Refresh token repo, the stateful half of refresh verification
	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("both access and refresh secrets must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	return &TokenManager{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		alg:           jwt.GetSigningMethod(cfg.Alg),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		refreshRepo:   refreshRepo,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// IssueAccess mints a short-lived access token for the user
func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	return m.issue(user, TypeAccess, m.accessSecret, m.accessTTL)
}

// IssueRefresh mints a refresh token
// The token is not persisted here, use SaveRefresh for that
func (m *TokenManager) IssueRefresh(user models.User) (models.IssuedToken, error) {
	return m.issue(user, TypeRefresh, m.refreshSecret, m.refreshTTL)
}

func (m *TokenManager) issue(user models.User, tokenType string, secret string, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
			Type:   tokenType,
		},
	)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing %s token. Err: %w", tokenType, err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// GeneratePair issues access and refresh tokens and persists the refresh one
// with the device metadata of the session that requested it
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User, device models.DeviceInfo) (models.TokenPair, error) {
	var pair models.TokenPair

	access, err := m.IssueAccess(user)
	if err != nil {
		return pair, err
	}

	refresh, err := m.IssueRefresh(user)
	if err != nil {
		return pair, err
	}

	_, err = m.refreshRepo.Save(ctx, models.RefreshToken{
		UserID:     user.ID,
		Token:      refresh.Value,
		DeviceInfo: device,
		CreatedAt:  time.Now().Truncate(time.Second),
		ExpiresAt:  refresh.ExpiresAt,
	})
	if err != nil {
		return pair, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// ParseAccess checks signature, expiry and class of an access token
func (m *TokenManager) ParseAccess(access string) (Claims, error) {
	return m.parse(access, TypeAccess, m.accessSecret)
}

// ParseRefresh checks signature, expiry and class of a refresh token
// Cryptographic validity only, persisted revocation state is not consulted
func (m *TokenManager) ParseRefresh(refresh string) (Claims, error) {
	return m.parse(refresh, TypeRefresh, m.refreshSecret)
}

func (m *TokenManager) parse(tokenString string, wantType string, secret string) (Claims, error) {
	claims := Claims{}

	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(t *jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}

	if claims.Type != wantType {
		return Claims{}, fmt.Errorf("%w: unexpected token type", apperrors.ErrTokenInvalid)
	}

	return claims, nil
}

// VerifyRefreshPersisted returns the stored record for a refresh token
// that is live (not revoked, not expired) AND still carries a valid signature.
// The signature re-check only matters after a secret rotation, when a stored
// record may outlive the key that signed it.
func (m *TokenManager) VerifyRefreshPersisted(ctx context.Context, refresh string) (models.RefreshToken, error) {
	record, err := m.refreshRepo.GetLive(ctx, refresh, time.Now())
	if err != nil {
		return record, err
	}

	if _, err := m.ParseRefresh(refresh); err != nil {
		return record, err
	}

	return record, nil
}

// Revoke marks one refresh token revoked
// Idempotent: unknown and already revoked tokens are a silent no-op
func (m *TokenManager) Revoke(ctx context.Context, refresh string) error {
	return m.refreshRepo.Revoke(ctx, refresh)
}

// RevokeAll revokes every refresh token the user holds ("log out everywhere")
func (m *TokenManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.refreshRepo.RevokeAllForUser(ctx, userID)
}

// DeleteExpired sweeps tokens past their expiry out of the store
func (m *TokenManager) DeleteExpired(ctx context.Context) (int64, error) {
	return m.refreshRepo.DeleteExpired(ctx, time.Now())
}
