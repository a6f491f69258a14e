package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetupProgressRepository хранит состояние мастера по арендаторам
type SetupProgressRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error)
	GetOrCreate(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error)
	Save(ctx context.Context, progress *domain.SetupProgress) error
}

type setupProgressRepository struct {
	db *gorm.DB
}

// NewSetupProgressRepository создаёт новый экземпляр репозитория
func NewSetupProgressRepository(db *gorm.DB) SetupProgressRepository {
	return &setupProgressRepository{db: db}
}

func (r *setupProgressRepository) Get(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error) {
	var progress domain.SetupProgress
	err := conn(ctx, r.db).Where("tenant_id = ?", tenantID).First(&progress).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, err
	}
	return &progress, nil
}

func (r *setupProgressRepository) GetOrCreate(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error) {
	progress, err := r.Get(ctx, tenantID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, domain.ErrProgressNotFound) {
		return nil, err
	}

	// Параллельный первый доступ: побеждает первая вставка
	err = conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(domain.NewSetupProgress(tenantID)).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, tenantID)
}

func (r *setupProgressRepository) Save(ctx context.Context, progress *domain.SetupProgress) error {
	return conn(ctx, r.db).Save(progress).Error
}

// StepDataRepository - хранилище данных шагов, без бизнес-валидации
type StepDataRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, step int) (*domain.StepData, error)
	Save(ctx context.Context, data *domain.StepData) error
	Exists(ctx context.Context, tenantID uuid.UUID, step int) (bool, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.StepData, error)
}

type stepDataRepository struct {
	db *gorm.DB
}

// NewStepDataRepository создаёт новый экземпляр репозитория
func NewStepDataRepository(db *gorm.DB) StepDataRepository {
	return &stepDataRepository{db: db}
}

func (r *stepDataRepository) Get(ctx context.Context, tenantID uuid.UUID, step int) (*domain.StepData, error) {
	var data domain.StepData
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND step = ?", tenantID, step).
		First(&data).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrStepDataNotFound
		}
		return nil, err
	}
	return &data, nil
}

func (r *stepDataRepository) Save(ctx context.Context, data *domain.StepData) error {
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "step"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "draft", "updated_at"}),
		}).
		Create(data).Error
}

// Exists сообщает, есть ли у шага сохранённые данные, не являющиеся черновиком
func (r *stepDataRepository) Exists(ctx context.Context, tenantID uuid.UUID, step int) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&domain.StepData{}).
		Where("tenant_id = ? AND step = ? AND draft = ?", tenantID, step, false).
		Count(&count).Error
	return count > 0, err
}

func (r *stepDataRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.StepData, error) {
	var data []domain.StepData
	err := conn(ctx, r.db).
		Where("tenant_id = ?", tenantID).
		Order("step ASC").
		Find(&data).Error
	return data, err
}
