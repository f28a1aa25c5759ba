package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smart-locker-backend/internal/model"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded update matched no row because
	// another writer changed it first.
	ErrConflict = errors.New("concurrent modification")
)

// CodeMatch tells which of a locker's codes matched a lookup.
type CodeMatch int

const (
	MatchNone CodeMatch = iota
	MatchOTP
	MatchSpecial
)

func (m CodeMatch) String() string {
	switch m {
	case MatchOTP:
		return "otp"
	case MatchSpecial:
		return "special"
	}
	return "none"
}

// Store defines the interface for all database operations.
type Store interface {
	GetLocker(ctx context.Context, id int64) (*model.Locker, error)
	ListLockers(ctx context.Context) ([]model.Locker, error)
	FindLockerByCode(ctx context.Context, code string) (*model.Locker, CodeMatch, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	UpsertLocker(ctx context.Context, locker *model.Locker) error
	AppendAccessCode(ctx context.Context, code *model.AccessCode) error
	OccupyLocker(ctx context.Context, id int64, code string, now, expiresAt time.Time) error
	ReleaseWithOTP(ctx context.Context, id int64, code string, now time.Time) error
	ReleaseWithSpecialCode(ctx context.Context, id int64, code string, now time.Time) error
	SetDoorClosed(ctx context.Context, id int64, closed bool) error
	FindDeliveryUserByPIN(ctx context.Context, pin string) (*model.DeliveryUser, error)
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *gormStore) GetLocker(ctx context.Context, id int64) (*model.Locker, error) {
	var l model.Locker
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *gormStore) ListLockers(ctx context.Context) ([]model.Locker, error) {
	var lockers []model.Locker
	if err := s.db.WithContext(ctx).Order("id").Find(&lockers).Error; err != nil {
		return nil, err
	}
	return lockers, nil
}

// FindLockerByCode looks the code up across the whole fleet, live one-time
// codes first, then special codes.
func (s *gormStore) FindLockerByCode(ctx context.Context, code string) (*model.Locker, CodeMatch, error) {
	var l model.Locker
	err := s.db.WithContext(ctx).Where("otp_code = ?", code).First(&l).Error
	if err == nil {
		return &l, MatchOTP, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, MatchNone, fmt.Errorf("otp lookup failed: %w", err)
	}

	err = s.db.WithContext(ctx).Where("special_code = ?", code).First(&l).Error
	if err == nil {
		return &l, MatchSpecial, nil
	}
	return nil, MatchNone, notFound(err)
}

// CodeInUse reports whether code is a live one-time code, a special code, or
// an unredeemed code in the audit log.
func (s *gormStore) CodeInUse(ctx context.Context, code string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Locker{}).
		Where("otp_code = ? OR special_code = ?", code, code).
		Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := s.db.WithContext(ctx).Model(&model.AccessCode{}).
		Where("code = ? AND used = ?", code, false).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertLocker inserts a locker or, if it exists, rewrites only its wiring and
// special code. Occupancy is owned by the guarded updates below.
func (s *gormStore) UpsertLocker(ctx context.Context, locker *model.Locker) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"backend_kind", "actuator_pin", "sensor_pin", "special_code", "updated_at"}),
	}).Create(locker).Error
}

func (s *gormStore) AppendAccessCode(ctx context.Context, code *model.AccessCode) error {
	if err := s.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("failed to append access code for locker %d: %w", code.LockerID, err)
	}
	return nil
}

// OccupyLocker marks an empty locker occupied with a fresh one-time code and
// records the code in the audit log, in one transaction. ErrConflict means the
// locker was not empty.
func (s *gormStore) OccupyLocker(ctx context.Context, id int64, code string, now, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Locker{}).
			Where("id = ? AND occupied = ?", id, false).
			Updates(map[string]any{
				"occupied":    true,
				"otp_code":    code,
				"door_closed": false,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to occupy locker %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		txStore := &gormStore{db: tx}
		return txStore.AppendAccessCode(ctx, &model.AccessCode{
			LockerID:  id,
			Code:      code,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		})
	})
}

// ReleaseWithOTP empties the locker only if it still holds code, and marks the
// matching audit row used. ErrConflict means another request consumed the code.
func (s *gormStore) ReleaseWithOTP(ctx context.Context, id int64, code string, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Locker{}).
			Where("id = ? AND otp_code = ?", id, code).
			Updates(map[string]any{
				"occupied":    false,
				"otp_code":    nil,
				"door_closed": false,
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to release locker %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if err := tx.Model(&model.AccessCode{}).
			Where("locker_id = ? AND code = ? AND used = ?", id, code, false).
			Updates(map[string]any{"used": true, "used_at": now}).Error; err != nil {
			return fmt.Errorf("failed to mark access code used for locker %d: %w", id, err)
		}
		return nil
	})
}

// ReleaseWithSpecialCode empties the locker if code is still its special code.
// The special code and the audit log are left untouched.
func (s *gormStore) ReleaseWithSpecialCode(ctx context.Context, id int64, code string, now time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Locker{}).
		Where("id = ? AND special_code = ?", id, code).
		Updates(map[string]any{
			"occupied":    false,
			"otp_code":    nil,
			"door_closed": false,
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release locker %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *gormStore) SetDoorClosed(ctx context.Context, id int64, closed bool) error {
	res := s.db.WithContext(ctx).Model(&model.Locker{}).
		Where("id = ?", id).
		Update("door_closed", closed)
	if res.Error != nil {
		return fmt.Errorf("failed to update door state for locker %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) FindDeliveryUserByPIN(ctx context.Context, pin string) (*model.DeliveryUser, error) {
	var u model.DeliveryUser
	if err := s.db.WithContext(ctx).Where("pin_code = ?", pin).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
