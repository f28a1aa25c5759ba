package locker

import (
	"errors"

	"smart-locker-backend/internal/hardware"
)

var (
	ErrLockerNotFound         = errors.New("locker not found")
	ErrInvalidCode            = errors.New("invalid code")
	ErrConcurrentModification = errors.New("locker was modified concurrently, retry")
	ErrLockerOccupied         = errors.New("locker is occupied")
	ErrInvalidPIN             = errors.New("invalid delivery pin")
	ErrNotSimulated           = hardware.ErrNotSimulated
)
