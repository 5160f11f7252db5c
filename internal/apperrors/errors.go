package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user is inactive")

	ErrTokenInvalid         = errors.New("token is invalid or expired")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrMessageTooLong = errors.New("message too long")
	ErrContextTooLong = errors.New("conversation context too long")

	ErrImageUnsupported = errors.New("unsupported image type")
	ErrImageTooLarge    = errors.New("image too large")
)
