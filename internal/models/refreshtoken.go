package models

import (
	"time"

	"github.com/google/uuid"
)

// Advisory device metadata captured when the token was issued.
// Not used for validation.
type DeviceInfo struct {
	UserAgent string
	IP        string
}

type RefreshToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Token      string
	DeviceInfo DeviceInfo
	IsRevoked  bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
