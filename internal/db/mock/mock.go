package mock

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	applog "avatarbot/internal/log"
	"avatarbot/models"
)

// New returns an in-memory sqlite database seeded with a small demo palette.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	db, err := gorm.Open(sqlite.Open("file:avatarbot-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		PrepareStmt:                              true,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Color{},
		&models.LastUserChoice{},
	); err != nil {
		return nil, err
	}

	if err := seed(ctx, db); err != nil {
		return nil, err
	}

	applog.Debug(ctx, "mock database ready")
	return db, nil
}

// Seed holds the demo palette; Retired is inactive to exercise the
// "not playing right now" path.
var Seed = []models.Color{
	{Name: "Bread", R: 0xc6, G: 0x89, B: 0x58, Active: true},
	{Name: "Sky", R: 0x87, G: 0xce, B: 0xfa, Active: true},
	{Name: "Crimson", R: 0xdc, G: 0x14, B: 0x3c, Active: true},
	{Name: "Retired", R: 0x80, G: 0x80, B: 0x80, Active: false},
}

func seed(ctx context.Context, db *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")

	for _, color := range Seed {
		colorCopy := color
		err := db.WithContext(ctx).Where(models.Color{Name: colorCopy.Name}).
			Attrs(colorCopy).
			FirstOrCreate(&colorCopy).Error
		if err != nil {
			return err
		}
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
