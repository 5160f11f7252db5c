package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chatbot-gateway/internal/apperrors"
	"chatbot-gateway/internal/models"
	"chatbot-gateway/internal/repository"
	"chatbot-gateway/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

var DefaultHasher PasswordHasher = BcryptHasher{}

type Config struct {
	// Hasher to use during registration or login
	// Default bcrypt hasher is used when nil
	Hasher PasswordHasher
}

// Result of register and login: the user plus a fresh token pair
type AuthResult struct {
	User   models.User
	Tokens models.TokenPair
}

type AuthService struct {
	token    *tokenmanager.TokenManager
	hasher   PasswordHasher
	userRepo repository.UserRepo
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = DefaultHasher
	}

	if token == nil || userRepo == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	return &AuthService{
		token:    token,
		hasher:   hasher,
		userRepo: userRepo,
	}, nil
}

func (s *AuthService) TokenManager() *tokenmanager.TokenManager { return s.token }

// Register creates the user and logs it in right away
// Duplicate emails surface as apperrors.ErrUserAlreadyExists, even when two
// registrations race: the store unique index lets exactly one insert through
func (s *AuthService) Register(ctx context.Context, email string, password string, device models.DeviceInfo) (AuthResult, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		return AuthResult{}, err
	}

	return s.finishLogin(ctx, user, device)
}

// Login checks the credentials against the stored hash
// A missing email and a wrong password both return apperrors.ErrUserNotFound,
// so the response can't be used to enumerate accounts
func (s *AuthService) Login(ctx context.Context, email string, password string, device models.DeviceInfo) (AuthResult, error) {
	// Ignore the lookup error: compare runs against the zero user either way
	// and fails with the same result as a wrong password
	user, _ := s.userRepo.GetActiveUserByEmail(ctx, email)

	err := s.hasher.Compare(user.HashedPassword, password)
	if err != nil {
		return AuthResult{}, apperrors.ErrUserNotFound
	}

	return s.finishLogin(ctx, user, device)
}

func (s *AuthService) finishLogin(ctx context.Context, user models.User, device models.DeviceInfo) (AuthResult, error) {
	pair, err := s.token.GeneratePair(ctx, user, device)
	if err != nil {
		return AuthResult{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	now := time.Now().Truncate(time.Second)
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return AuthResult{}, fmt.Errorf("error while updating last login. Err: %w", err)
	}
	user.LastLogin = &now

	return AuthResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new access token
// The refresh token itself is not rotated
// Both checks must pass: a valid signature and a live persisted record
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.IssuedToken, error) {
	claims, err := s.token.ParseRefresh(refresh)
	if err != nil {
		return models.IssuedToken{}, err
	}

	if _, err := s.token.VerifyRefreshPersisted(ctx, refresh); err != nil {
		return models.IssuedToken{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.IssuedToken{}, err
	}
	if !user.IsActive {
		return models.IssuedToken{}, apperrors.ErrUserInactive
	}

	return s.token.IssueAccess(user)
}

// Logout revokes the refresh token if one was supplied
// Revoking an unknown or already revoked token is not an error
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	return s.token.Revoke(ctx, refresh)
}

// GetProfile returns the user for an already authenticated identity
func (s *AuthService) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

// RevokeAll kills every session the user holds
func (s *AuthService) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.token.RevokeAll(ctx, userID)
}
