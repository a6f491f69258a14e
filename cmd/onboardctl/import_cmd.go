package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tenant-onboarding/internal/config"
	"github.com/tenant-onboarding/internal/database"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/repository"
	"github.com/tenant-onboarding/internal/service"
	"github.com/tenant-onboarding/internal/storage"
)

// deferredDispatcher ничего не ставит в очередь: команда выполняет задание сама
type deferredDispatcher struct{}

func (deferredDispatcher) Dispatch(context.Context, uuid.UUID) error { return nil }

func newImportCmd() *cobra.Command {
	var (
		tenantID   string
		targetType string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import departments or positions from a CSV/XLSX file and print row results",
		RunE: func(cmd *cobra.Command, args []string) error {
			tid, err := uuid.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			target, err := domain.ParseTargetType(targetType)
			if err != nil {
				return fmt.Errorf("invalid --type: %w", err)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger()

			db, err := database.Connect(cmd.Context(), cfg.Database, 1, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			storageDir, err := os.MkdirTemp("", "onboardctl-import-*")
			if err != nil {
				return err
			}
			defer os.RemoveAll(storageDir)

			org := service.NewOrgService(
				lock.NewTenantLocker(),
				repository.NewDepartmentRepository(db),
				repository.NewPositionRepository(db),
			)
			imports := service.NewImportService(
				repository.NewImportJobRepository(db),
				storage.NewLocalFileStore(storageDir),
				org,
				service.NewTemplateService(),
				deferredDispatcher{},
				service.ImportOptions{
					MaxUploadBytes: cfg.Import.MaxUploadBytes,
					RowConcurrency: cfg.Import.RowConcurrency,
				},
				logger,
			)

			ctx := cmd.Context()
			job, err := imports.Upload(ctx, tid, target, filepath.Base(file), data)
			if err != nil {
				return err
			}
			if _, err := imports.Process(ctx, tid, job.ID); err != nil {
				return err
			}
			done, err := imports.Execute(ctx, job.ID)
			if err != nil {
				return err
			}

			if err := writeJSON(cmd.OutOrStdout(), done); err != nil {
				return err
			}
			if done.Status == domain.ImportFailed {
				return fmt.Errorf("import failed: %s", done.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&targetType, "type", "", "departments or positions (required)")
	cmd.Flags().StringVar(&file, "file", "", "Path to a CSV or XLSX file (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
