package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"gorm.io/gorm"
)

// PositionRepository определяет интерфейс для работы с должностями
type PositionRepository interface {
	Create(ctx context.Context, pos *domain.Position) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Position, error)
	List(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID) ([]domain.Position, error)
	Update(ctx context.Context, pos *domain.Position) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string, excludeID *uuid.UUID) (bool, error)
	CountByDepartment(ctx context.Context, tenantID, departmentID uuid.UUID) (int64, error)
}

type positionRepository struct {
	db *gorm.DB
}

// NewPositionRepository создаёт новый экземпляр репозитория
func NewPositionRepository(db *gorm.DB) PositionRepository {
	return &positionRepository{db: db}
}

func (r *positionRepository) Create(ctx context.Context, pos *domain.Position) error {
	err := conn(ctx, r.db).Omit("Department").Create(pos).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *positionRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Position, error) {
	var pos domain.Position
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&pos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, err
	}
	return &pos, nil
}

func (r *positionRepository) List(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID) ([]domain.Position, error) {
	var positions []domain.Position
	query := conn(ctx, r.db).Where("tenant_id = ?", tenantID)
	if departmentID != nil {
		query = query.Where("department_id = ?", *departmentID)
	}
	err := query.Order("code_key ASC").Find(&positions).Error
	return positions, err
}

func (r *positionRepository) Update(ctx context.Context, pos *domain.Position) error {
	err := conn(ctx, r.db).Omit("Department").Save(pos).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *positionRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := conn(ctx, r.db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&domain.Position{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func (r *positionRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := conn(ctx, r.db).
		Model(&domain.Position{}).
		Where("tenant_id = ? AND code_key = ?", tenantID, domain.CodeKey(code))

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	err := query.Count(&count).Error
	return count > 0, err
}

func (r *positionRepository) CountByDepartment(ctx context.Context, tenantID, departmentID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&domain.Position{}).
		Where("tenant_id = ? AND department_id = ?", tenantID, departmentID).
		Count(&count).Error
	return count, err
}
