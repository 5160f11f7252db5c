package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatbot-gateway/internal/models"
)

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Role         string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)

	// Get active user by email (case-insensitive)
	// Inactive or missing users both return apperrors.ErrUserNotFound
	GetActiveUserByEmail(ctx context.Context, email string) (models.User, error)

	// Set last login timestamp
	UpdateLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists, even revoked or expired
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Return a live token only
	// If the token is missing, must return apperrors.ErrRefreshTokenNotFound
	// If the token is revoked, must return apperrors.ErrRefreshTokenRevoked
	// If the token expired before 'now', must return apperrors.ErrRefreshTokenExpired
	GetLive(ctx context.Context, tokenString string, now time.Time) (models.RefreshToken, error)

	// Mark token revoked
	// Revoking a missing or already revoked token is a silent no-op
	Revoke(ctx context.Context, tokenString string) error

	// Mark every token owned by the user revoked, returns affected count
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// Remove tokens that expired before 'now', returns removed count
	// Advisory cleanup: expiry is checked on every verification anyway
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Storage aggregates the repositories backed by one database
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
}
