// Package database открывает подключение к PostgreSQL и применяет миграции.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tenant-onboarding/internal/config"
	"github.com/tenant-onboarding/migrations"
)

const (
	MigrateUp     = "up"
	MigrateStatus = "status"
)

// Connect ждёт доступности базы: attempts попыток с интервалом в секунду
func Connect(ctx context.Context, cfg config.DatabaseConfig, attempts int, logger *slog.Logger) (*gorm.DB, error) {
	var lastErr error

	for i := range attempts {
		db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
			TranslateError: true,
		})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				if err = sqlDB.PingContext(ctx); err == nil {
					return db, nil
				}
				_ = sqlDB.Close()
			} else {
				err = dbErr
			}
		}
		lastErr = err
		logger.Warn("database is not ready",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, lastErr)
}

// Migrate выполняет команду goose над встроенными миграциями
func Migrate(db *sql.DB, command string) error {
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	switch command {
	case MigrateUp:
		if err := goose.Up(db, "."); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	case MigrateStatus:
		if err := goose.Status(db, "."); err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	return nil
}
