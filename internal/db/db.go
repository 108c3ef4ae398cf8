package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"studyspace-reservation/config"
	"studyspace-reservation/internal/model"
)

// Init opens the configured database, applies pool settings and runs
// migrations.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			log.Warn("failed to apply postgres DDL, continuing without it", zap.Error(err))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Student{},
		&model.Seat{},
		&model.Room{},
		&model.Reservation{},
		&model.ReservationParticipant{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// EnsureResources inserts seats 1..seats and rooms 1..rooms when missing.
// Existing rows are left untouched.
func EnsureResources(ctx context.Context, db *gorm.DB, seats, rooms, roomCapacity int) error {
	seatRows := make([]model.Seat, seats)
	for i := range seatRows {
		seatRows[i] = model.Seat{ID: int64(i + 1), Number: i + 1}
	}
	roomRows := make([]model.Room, rooms)
	for i := range roomRows {
		roomRows[i] = model.Room{
			ID:       int64(i + 1),
			Name:     fmt.Sprintf("Meeting Room %d", i+1),
			Capacity: roomCapacity,
			Location: "Study Hall",
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(seatRows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&seatRows, 100).Error; err != nil {
				return fmt.Errorf("failed to bootstrap seats: %w", err)
			}
		}
		if len(roomRows) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&roomRows).Error; err != nil {
				return fmt.Errorf("failed to bootstrap rooms: %w", err)
			}
		}
		return nil
	})
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		// Overlap checks only ever read active rows.
		"CREATE INDEX IF NOT EXISTS idx_reservations_active_slot ON reservations " +
			"(kind, resource_id, date) WHERE status = 'ACTIVE';",

		"ALTER TABLE reservations DROP CONSTRAINT IF EXISTS reservations_window_valid;",
		"ALTER TABLE reservations " +
			"ADD CONSTRAINT reservations_window_valid CHECK (start_time < end_time);",

		"ALTER TABLE students DROP CONSTRAINT IF EXISTS students_usage_non_negative;",
		"ALTER TABLE students ADD CONSTRAINT students_usage_non_negative CHECK (" +
			"seat_daily_used_hours >= 0 AND room_daily_used_hours >= 0 AND room_weekly_used_hours >= 0);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
