package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/metrics"
	"github.com/tenant-onboarding/internal/repository"
)

// ProgressTracker - конечный автомат шагов мастера для одного арендатора
type ProgressTracker interface {
	GetProgress(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error)
	CompleteStep(ctx context.Context, tenantID uuid.UUID, step int) (*domain.SetupProgress, error)
	GoToStep(ctx context.Context, tenantID uuid.UUID, target int) (*domain.SetupProgress, error)
}

type progressTracker struct {
	locker       *lock.TenantLocker
	progressRepo repository.SetupProgressRepository
	stepRepo     repository.StepDataRepository
	now          func() time.Time
}

// NewProgressTracker создаёт новый экземпляр сервиса
func NewProgressTracker(
	locker *lock.TenantLocker,
	progressRepo repository.SetupProgressRepository,
	stepRepo repository.StepDataRepository,
) ProgressTracker {
	return newProgressTracker(locker, progressRepo, stepRepo)
}

func newProgressTracker(
	locker *lock.TenantLocker,
	progressRepo repository.SetupProgressRepository,
	stepRepo repository.StepDataRepository,
) *progressTracker {
	return &progressTracker{
		locker:       locker,
		progressRepo: progressRepo,
		stepRepo:     stepRepo,
		now:          time.Now,
	}
}

func (t *progressTracker) GetProgress(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error) {
	return t.progressRepo.GetOrCreate(ctx, tenantID)
}

func (t *progressTracker) CompleteStep(ctx context.Context, tenantID uuid.UUID, step int) (*domain.SetupProgress, error) {
	unlock := t.locker.Lock(tenantID)
	defer unlock()

	progress, advanced, err := t.completeStep(ctx, tenantID, step)
	if err != nil {
		return nil, err
	}
	if advanced {
		recordCompletion(step, progress)
	}
	return progress, nil
}

func (t *progressTracker) GoToStep(ctx context.Context, tenantID uuid.UUID, target int) (*domain.SetupProgress, error) {
	unlock := t.locker.Lock(tenantID)
	defer unlock()

	return t.goToStep(ctx, tenantID, target)
}

// checkCompletable проверяет порядок без изменения состояния.
// Возвращает true, если шаг уже завершён и вызов ничего не изменит.
func (t *progressTracker) checkCompletable(progress *domain.SetupProgress, step int) (bool, error) {
	if _, err := domain.LookupStep(step); err != nil {
		return false, err
	}
	if progress.Activated {
		return false, domain.ErrSetupAlreadyActivated
	}

	// Повторное сохранение пройденного шага не откатывает currentStep
	if progress.IsCompleted(step) && step < progress.CurrentStep {
		return true, nil
	}
	if step != progress.CurrentStep {
		return false, domain.ErrInvalidStepOrder
	}
	if _, missing := progress.MissingRequiredBefore(step); missing {
		return false, domain.ErrInvalidStepOrder
	}
	return false, nil
}

// completeStep выполняется под блокировкой арендатора.
func (t *progressTracker) completeStep(ctx context.Context, tenantID uuid.UUID, step int) (*domain.SetupProgress, bool, error) {
	progress, err := t.progressRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}

	noop, err := t.checkCompletable(progress, step)
	if err != nil {
		return nil, false, err
	}
	if noop {
		return progress, false, nil
	}

	def := domain.Steps[step]
	if def.Required {
		saved, err := t.stepRepo.Exists(ctx, tenantID, step)
		if err != nil {
			return nil, false, err
		}
		if !saved {
			return nil, false, domain.ErrInvalidStepOrder
		}
	}

	next := progress.Clone()
	next.MarkCompleted(step)
	if def.Terminal {
		at := t.now().UTC()
		next.Activated = true
		next.ActivatedAt = &at
	} else {
		next.CurrentStep = min(step+1, domain.LastStep)
	}

	if err := t.progressRepo.Save(ctx, next); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

// goToStep выполняется под блокировкой арендатора.
func (t *progressTracker) goToStep(ctx context.Context, tenantID uuid.UUID, target int) (*domain.SetupProgress, error) {
	if _, err := domain.LookupStep(target); err != nil {
		return nil, err
	}

	progress, err := t.progressRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if progress.Activated {
		return nil, domain.ErrSetupAlreadyActivated
	}

	// Переход назад - состояние представления, трекер его не хранит
	if target <= progress.CurrentStep {
		return progress, nil
	}

	next := progress.Clone()
	for n := progress.CurrentStep; n < target; n++ {
		if progress.IsCompleted(n) {
			continue
		}
		if !domain.Steps[n].Skippable {
			return nil, domain.ErrStepNotSkippable
		}
		next.MarkSkipped(n)
	}
	next.CurrentStep = target

	if err := t.progressRepo.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func recordCompletion(step int, progress *domain.SetupProgress) {
	metrics.StepCompleted(step)
	if progress.Activated {
		metrics.Activated()
	}
}
