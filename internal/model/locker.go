package model

import "time"

// Locker is one physical compartment. The row is created at provisioning and
// never deleted; it cycles between empty and occupied.
type Locker struct {
	ID          int64   `gorm:"primaryKey;autoIncrement:false"`
	Occupied    bool    `gorm:"not null"`
	DoorClosed  bool    `gorm:"not null"`
	OTPCode     *string `gorm:"column:otp_code;size:32;uniqueIndex"` // set only while occupied
	SpecialCode *string `gorm:"size:32;uniqueIndex"`
	BackendKind string  `gorm:"size:16;not null"`
	ActuatorPin int     `gorm:"not null"`
	SensorPin   *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
