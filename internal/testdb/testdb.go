// Package testdb поднимает изолированную sqlite базу в памяти для тестов.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tenant-onboarding/internal/domain"
)

// Models - все таблицы сервиса
var Models = []any{
	&domain.Department{},
	&domain.Position{},
	&domain.SetupProgress{},
	&domain.StepData{},
	&domain.ImportJob{},
}

// New открывает новую базу и применяет схему. Одно соединение: sqlite в памяти
// не переносит параллельную запись через несколько соединений.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(Models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}
