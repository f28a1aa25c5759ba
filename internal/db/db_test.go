package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/model"
)

func TestInit_SQLiteCreatesDirectoryAndSchema(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "locker.db")
	gdb, err := Init(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	sqlDB, _ := gdb.DB()
	defer sqlDB.Close()

	assert.FileExists(t, dsn)
	assert.True(t, gdb.Migrator().HasTable(&model.Locker{}))
	assert.True(t, gdb.Migrator().HasTable(&model.AccessCode{}))
	assert.True(t, gdb.Migrator().HasTable(&model.DeliveryUser{}))
}

func TestInit_UnsupportedDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = Init(&config.DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func TestSeed_OnlyOnce(t *testing.T) {
	gdb, err := Init(&config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "seed.db")})
	require.NoError(t, err)
	sqlDB, _ := gdb.DB()
	defer sqlDB.Close()
	ctx := context.Background()

	lockers := []model.Locker{
		{ID: 1, DoorClosed: true, BackendKind: "direct", ActuatorPin: 4},
		{ID: 2, DoorClosed: true, BackendKind: "expander", ActuatorPin: 0},
	}
	user := model.DeliveryUser{Name: "Admin", PINCode: "1234"}
	require.NoError(t, Seed(ctx, gdb, lockers, user))

	more := []model.Locker{{ID: 3, DoorClosed: true, BackendKind: "direct", ActuatorPin: 5}}
	require.NoError(t, Seed(ctx, gdb, more, model.DeliveryUser{Name: "Other", PINCode: "9999"}))

	var lockerCount, userCount int64
	gdb.Model(&model.Locker{}).Count(&lockerCount)
	gdb.Model(&model.DeliveryUser{}).Count(&userCount)
	assert.Equal(t, int64(2), lockerCount)
	assert.Equal(t, int64(1), userCount)

	var l model.Locker
	require.NoError(t, gdb.First(&l, 2).Error)
	assert.True(t, l.DoorClosed)
	assert.False(t, l.Occupied)
	assert.Nil(t, l.OTPCode)
}
