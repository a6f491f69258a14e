package database_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tenant-onboarding/internal/database"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/repository"
)

func TestMigrationsAndUniqueCodesIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to connect db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := database.Migrate(sqlDB, database.MigrateUp); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if err := database.Migrate(sqlDB, database.MigrateStatus); err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}

	ctx := context.Background()
	tenant := uuid.New()
	repo := repository.NewDepartmentRepository(db)

	if err := repo.Create(ctx, &domain.Department{TenantID: tenant, Code: "TI", Name: "Tecnologia"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = repo.Create(ctx, &domain.Department{TenantID: tenant, Code: "ti", Name: "Duplicado"})
	if !errors.Is(err, domain.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode from the unique index, got %v", err)
	}

	if err := repo.Create(ctx, &domain.Department{TenantID: uuid.New(), Code: "TI", Name: "Outro"}); err != nil {
		t.Fatalf("same code for another tenant must be allowed: %v", err)
	}

	progress, err := repository.NewSetupProgressRepository(db).GetOrCreate(ctx, tenant)
	if err != nil {
		t.Fatalf("get or create progress failed: %v", err)
	}
	if progress.CurrentStep != domain.FirstStep {
		t.Fatalf("expected step %d, got %d", domain.FirstStep, progress.CurrentStep)
	}
}
