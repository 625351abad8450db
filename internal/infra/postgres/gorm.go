package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/EphemURL/config"
	"github.com/sifan077/EphemURL/internal/app/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultConnMaxLifetime = 5 * time.Minute

// NewGorm returns a gorm.DB for the mapping store.
//
// Driver errors are translated so a unique violation surfaces as
// gorm.ErrDuplicatedKey. Single-statement writes skip GORM's implicit
// transaction.
func NewGorm(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Warn),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	pg := cfg.Postgres
	if pg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(int(pg.MaxConns))
	}
	if pg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(pg.MinConns))
	}
	sqlDB.SetConnMaxLifetime(parseDuration(pg.MaxConnLifetime, defaultConnMaxLifetime))
	if d := parseDuration(pg.MaxConnIdleTime, 0); d > 0 {
		sqlDB.SetConnMaxIdleTime(d)
	}

	return db, nil
}

// AutoMigrate creates or updates the urls table and its indexes.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(&model.Mapping{}); err != nil {
		return fmt.Errorf("postgres: auto migrate: %w", err)
	}

	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
