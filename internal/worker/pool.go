package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
)

var ErrPoolStopped = errors.New("import pool is stopped")

// Executor выполняет задание импорта, находящееся в PROCESSING
type Executor interface {
	Execute(ctx context.Context, jobID uuid.UUID) (*domain.ImportJob, error)
}

// Dispatcher ставит задание в очередь на выполнение
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID uuid.UUID) error
}

type Config struct {
	Workers   int
	QueueSize int
}

// Pool - пул горутин, выполняющих задания импорта в процессе
type Pool struct {
	cfg    Config
	logger *slog.Logger

	jobs chan uuid.UUID
	done chan struct{}
	wg   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPool(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	return &Pool{
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan uuid.UUID, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start запускает воркеры. Повторный вызов ничего не делает.
func (p *Pool) Start(exec Executor) {
	p.startOnce.Do(func() {
		for i := 0; i < p.cfg.Workers; i++ {
			p.wg.Add(1)
			go p.workerLoop(i, exec)
		}
		p.logger.Info("import pool started", slog.Int("workers", p.cfg.Workers))
	})
}

// Dispatch ставит задание в очередь. Блокируется, пока очередь заполнена.
func (p *Pool) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	select {
	case p.jobs <- jobID:
		return nil
	case <-p.done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop перестаёт принимать задания и ждёт завершения выполняющихся.
// Задания, оставшиеся в очереди, остаются в PROCESSING и подбираются при следующем запуске.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Pool) workerLoop(id int, exec Executor) {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case jobID := <-p.jobs:
			p.run(id, exec, jobID)
		}
	}
}

func (p *Pool) run(id int, exec Executor, jobID uuid.UUID) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("import job panicked",
				slog.Int("worker", id),
				slog.String("job_id", jobID.String()),
				slog.Any("panic", rec),
			)
		}
	}()

	// Начатое задание выполняется до конца, отмены нет
	_, err := exec.Execute(context.Background(), jobID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrImportJobLeased), errors.Is(err, domain.ErrInvalidJobTransition):
		// Повторная отправка уже взятого или завершённого задания
		p.logger.Info("skipping import job",
			slog.Int("worker", id),
			slog.String("job_id", jobID.String()),
			slog.String("reason", err.Error()),
		)
	default:
		p.logger.Error("import job failed",
			slog.Int("worker", id),
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Recover повторно отправляет задания, оставшиеся в PROCESSING после остановки процесса
func Recover(ctx context.Context, pending func(context.Context) ([]uuid.UUID, error), d Dispatcher, logger *slog.Logger) (int, error) {
	ids, err := pending(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := d.Dispatch(ctx, id); err != nil {
			return i, err
		}
	}
	if len(ids) > 0 {
		logger.Info("recovered import jobs", slog.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Purger удаляет завершённые задания старше момента before
type Purger interface {
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)
}

// Watchdog периодически повторно отправляет зависшие задания:
// исполнитель пропал, не продлив аренду, или отправка не удалась
type Watchdog struct {
	stalled    func(context.Context) ([]uuid.UUID, error)
	dispatcher Dispatcher
	interval   time.Duration
	logger     *slog.Logger
}

func NewWatchdog(stalled func(context.Context) ([]uuid.UUID, error), d Dispatcher, interval time.Duration, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		stalled:    stalled,
		dispatcher: d,
		interval:   interval,
		logger:     logger,
	}
}

// Run блокируется до отмены ctx
func (w *Watchdog) Run(ctx context.Context) {
	every(ctx, w.interval, func() { w.Sweep(ctx) })
}

// Sweep выполняет одну проверку и возвращает число отправленных заданий
func (w *Watchdog) Sweep(ctx context.Context) int {
	n, err := Recover(ctx, w.stalled, w.dispatcher, w.logger)
	if err != nil {
		w.logger.Error("failed to redispatch stalled import jobs", slog.String("error", err.Error()))
	}
	return n
}

// Janitor периодически удаляет завершённые задания активированных арендаторов
type Janitor struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewJanitor(purger Purger, retention, interval time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		purger:    purger,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

// Run блокируется до отмены ctx
func (j *Janitor) Run(ctx context.Context) {
	every(ctx, j.interval, func() { j.Sweep(ctx) })
}

// Sweep выполняет одну очистку
func (j *Janitor) Sweep(ctx context.Context) int64 {
	n, err := j.purger.PurgeFinished(ctx, j.now().Add(-j.retention))
	if err != nil {
		j.logger.Error("failed to purge import jobs", slog.String("error", err.Error()))
		return 0
	}
	if n > 0 {
		j.logger.Info("purged import jobs", slog.Int64("count", n))
	}
	return n
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
