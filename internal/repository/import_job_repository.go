package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"gorm.io/gorm"
)

// ImportJobRepository хранит жизненный цикл заданий импорта
type ImportJobRepository interface {
	Create(ctx context.Context, job *domain.ImportJob) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error)
	GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*domain.ImportJob, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.ImportJob, error)
	ListByStatus(ctx context.Context, status domain.ImportStatus) ([]domain.ImportJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) error
	Heartbeat(ctx context.Context, id uuid.UUID, until time.Time) error
	ListStalled(ctx context.Context, now, unclaimedBefore time.Time) ([]domain.ImportJob, error)
	Finish(ctx context.Context, job *domain.ImportJob) error
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)
}

type importJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository создаёт новый экземпляр репозитория
func NewImportJobRepository(db *gorm.DB) ImportJobRepository {
	return &importJobRepository{db: db}
}

func (r *importJobRepository) Create(ctx context.Context, job *domain.ImportJob) error {
	return conn(ctx, r.db).Create(job).Error
}

func (r *importJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := conn(ctx, r.db).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrImportJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *importJobRepository) GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*domain.ImportJob, error) {
	var job domain.ImportJob
	err := conn(ctx, r.db).Where("tenant_id = ? AND id = ?", tenantID, id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrImportJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *importJobRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := conn(ctx, r.db).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *importJobRepository) ListByStatus(ctx context.Context, status domain.ImportStatus) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := conn(ctx, r.db).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// MarkProcessing переводит UPLOADED -> PROCESSING; любой другой статус даёт ErrInvalidJobTransition
func (r *importJobRepository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	result := conn(ctx, r.db).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.ImportUploaded).
		Updates(map[string]any{
			"status":     domain.ImportProcessing,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrInvalidJobTransition
	}
	return nil
}

// Claim закрепляет задание в PROCESSING за исполнителем до now+lease.
// Пока чужая аренда не истекла, возвращает ErrImportJobLeased.
func (r *importJobRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) error {
	result := conn(ctx, r.db).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.ImportProcessing).
		Where("lease_expires_at IS NULL OR lease_expires_at < ?", now).
		Update("lease_expires_at", now.Add(lease))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != domain.ImportProcessing {
		return domain.ErrInvalidJobTransition
	}
	return domain.ErrImportJobLeased
}

// Heartbeat продлевает аренду выполняющегося задания
func (r *importJobRepository) Heartbeat(ctx context.Context, id uuid.UUID, until time.Time) error {
	result := conn(ctx, r.db).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.ImportProcessing).
		Update("lease_expires_at", until)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidJobTransition
	}
	return nil
}

// ListStalled возвращает задания в PROCESSING с истёкшей арендой, а также
// не взятые в работу с момента unclaimedBefore
func (r *importJobRepository) ListStalled(ctx context.Context, now, unclaimedBefore time.Time) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	err := conn(ctx, r.db).
		Where("status = ?", domain.ImportProcessing).
		Where(
			"(lease_expires_at IS NOT NULL AND lease_expires_at < ?) OR (lease_expires_at IS NULL AND started_at < ?)",
			now, unclaimedBefore,
		).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// Finish записывает итог и переводит PROCESSING -> COMPLETED|FAILED
func (r *importJobRepository) Finish(ctx context.Context, job *domain.ImportJob) error {
	if !job.Status.Terminal() {
		return domain.ErrInvalidJobTransition
	}

	result := conn(ctx, r.db).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", job.ID, domain.ImportProcessing).
		Updates(map[string]any{
			"status":           job.Status,
			"row_results":      job.RowResults,
			"accepted_count":   job.AcceptedCount,
			"rejected_count":   job.RejectedCount,
			"error":            job.Error,
			"completed_at":     job.CompletedAt,
			"lease_expires_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvalidJobTransition
	}
	return nil
}

// PurgeFinished удаляет завершённые задания арендаторов, прошедших активацию
func (r *importJobRepository) PurgeFinished(ctx context.Context, before time.Time) (int64, error) {
	activated := conn(ctx, r.db).
		Model(&domain.SetupProgress{}).
		Select("tenant_id").
		Where("activated = ?", true)

	result := conn(ctx, r.db).
		Where("status IN ? AND completed_at < ? AND tenant_id IN (?)",
			[]domain.ImportStatus{domain.ImportCompleted, domain.ImportFailed}, before, activated).
		Delete(&domain.ImportJob{})
	return result.RowsAffected, result.Error
}
