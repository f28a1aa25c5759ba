package cli

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/db"
	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/locker"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/store"
)

// app is everything a command needs, wired from configuration.
type app struct {
	db     *gorm.DB
	hw     *hardware.Router
	svc    *locker.Service
	logger *slog.Logger
}

// openApp connects the database, provisions the fleet on first start and
// brings up the hardware with the persisted wiring.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, drivers hardware.Drivers) (*app, error) {
	gdb, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	defaults, err := hardware.DefaultLayout(cfg.Hardware)
	if err != nil {
		return nil, fmt.Errorf("default layout: %w", err)
	}
	courier := model.DeliveryUser{Name: cfg.Database.DefaultDeliveryUser, PINCode: cfg.Database.DefaultDeliveryPIN}
	if err := db.Seed(ctx, gdb, locker.SeedLockers(defaults), courier); err != nil {
		return nil, err
	}

	st := store.NewGormStore(gdb)
	rows, err := st.ListLockers(ctx)
	if err != nil {
		return nil, err
	}
	layout, err := locker.LayoutFromLockers(cfg.Hardware.FleetSize, rows)
	if err != nil {
		return nil, fmt.Errorf("persisted wiring: %w", err)
	}

	hw, err := hardware.Open(cfg.Hardware, layout, logger, drivers)
	if err != nil {
		return nil, err
	}
	if hw.Simulated() {
		closed := make(map[int64]bool, len(rows))
		for _, r := range rows {
			closed[r.ID] = r.DoorClosed
		}
		if err := hw.RestoreSimulated(closed); err != nil {
			return nil, err
		}
	}

	return &app{
		db:     gdb,
		hw:     hw,
		svc:    locker.NewService(st, hw, cfg.Codes, logger),
		logger: logger,
	}, nil
}

func (a *app) Close() {
	if err := a.hw.Close(); err != nil {
		a.logger.Warn("closing hardware", "error", err)
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
