package model

import "time"

// AccessCode is the append-only audit trail of issued one-time codes.
// Only Used and UsedAt change after creation.
type AccessCode struct {
	ID        int64     `gorm:"primaryKey"`
	LockerID  int64     `gorm:"index;not null"`
	Code      string    `gorm:"size:32;index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null"`
	UsedAt    *time.Time
}
