package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenant-onboarding/internal/branding"
	"github.com/tenant-onboarding/internal/config"
	"github.com/tenant-onboarding/internal/database"
	"github.com/tenant-onboarding/internal/handler"
	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/metrics"
	"github.com/tenant-onboarding/internal/queue"
	"github.com/tenant-onboarding/internal/repository"
	"github.com/tenant-onboarding/internal/service"
	"github.com/tenant-onboarding/internal/storage"
	"github.com/tenant-onboarding/internal/worker"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Инициализация логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Подключение к БД
	db, err := database.Connect(ctx, cfg.Database, 30, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	// Запуск миграций
	if err := database.Migrate(sqlDB, database.MigrateUp); err != nil {
		return err
	}

	// Инициализация репозиториев
	progressRepo := repository.NewSetupProgressRepository(db)
	stepRepo := repository.NewStepDataRepository(db)
	deptRepo := repository.NewDepartmentRepository(db)
	posRepo := repository.NewPositionRepository(db)
	jobRepo := repository.NewImportJobRepository(db)

	refresher, closeRefresher, err := newRefresher(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRefresher()

	// Инициализация сервисов
	wizardService := service.NewWizardService(
		lock.NewTenantLocker(),
		repository.NewTransactor(db),
		progressRepo,
		stepRepo,
		refresher,
		logger,
	)
	orgService := service.NewOrgService(lock.NewTenantLocker(), deptRepo, posRepo)
	templateService := service.NewTemplateService()

	dispatcher, startWorkers, stopWorkers, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	importService := service.NewImportService(
		jobRepo,
		storage.NewLocalFileStore(cfg.Import.StorageDir),
		orgService,
		templateService,
		dispatcher,
		service.ImportOptions{
			MaxUploadBytes:  cfg.Import.MaxUploadBytes,
			RowConcurrency:  cfg.Import.RowConcurrency,
			LeaseDuration:   cfg.Import.LeaseDuration,
			DispatchTimeout: cfg.Import.DispatchTimeout,
		},
		logger,
	)
	startWorkers(ctx, importService)
	defer stopWorkers()

	if _, err := worker.Recover(ctx, importService.PendingJobs, dispatcher, logger); err != nil {
		logger.Error("failed to recover import jobs", slog.Any("error", err))
	}
	go worker.NewWatchdog(importService.StalledJobs, dispatcher, cfg.Import.LeaseDuration, logger).Run(ctx)
	go worker.NewJanitor(importService, cfg.Import.JobRetention, cfg.Import.JanitorInterval, logger).Run(ctx)

	// Настройка роутера
	routerCfg := handler.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
		routerCfg.MetricsHandler = metrics.Handler()
	}
	router := handler.NewRouter(
		handler.NewWizardHandler(wizardService, logger),
		handler.NewOrgHandler(orgService, logger),
		handler.NewImportHandler(importService, templateService, cfg.Import.MaxUploadBytes, logger),
		routerCfg,
		logger,
	)

	// Настройка HTTP сервера
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server is starting", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("could not gracefully shutdown the server", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return nil
}

func newRefresher(cfg config.RedisConfig, logger *slog.Logger) (branding.Refresher, func(), error) {
	if cfg.URL == "" {
		return branding.NewLogRefresher(logger), func() {}, nil
	}
	r, err := branding.NewRedisRefresherFromURL(cfg.URL, cfg.BrandingPrefix, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("failed to close redis client", slog.Any("error", err))
		}
	}, nil
}

// newDispatcher выбирает транспорт заданий импорта по QUEUE_DRIVER
func newDispatcher(cfg *config.Config, logger *slog.Logger) (
	service.Dispatcher,
	func(context.Context, worker.Executor),
	func(),
	error,
) {
	switch cfg.Queue.Driver {
	case config.QueueAMQP:
		d, err := queue.NewAMQPDispatcher(cfg.Queue.AMQPURL, cfg.Queue.AMQPName, cfg.Queue.Prefetch, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		start := func(ctx context.Context, exec worker.Executor) {
			for range cfg.Import.Workers {
				go func() {
					if err := d.Consume(ctx, exec); err != nil {
						logger.Error("import consumer stopped", slog.Any("error", err))
					}
				}()
			}
		}
		stop := func() {
			if err := d.Close(); err != nil {
				logger.Warn("failed to close amqp connection", slog.Any("error", err))
			}
		}
		return d, start, stop, nil
	default:
		pool := worker.NewPool(worker.Config{Workers: cfg.Import.Workers}, logger)
		start := func(_ context.Context, exec worker.Executor) { pool.Start(exec) }
		return pool, start, pool.Stop, nil
	}
}
