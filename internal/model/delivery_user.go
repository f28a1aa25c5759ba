package model

// DeliveryUser authenticates the courier who deposits parcels.
type DeliveryUser struct {
	ID      int64  `gorm:"primaryKey"`
	Name    string `gorm:"size:128;not null"`
	PINCode string `gorm:"column:pin_code;size:32;uniqueIndex;not null"`
}
