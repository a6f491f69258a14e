package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"gorm.io/gorm"
)

// DepartmentRepository определяет интерфейс для работы с подразделениями
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Department, error)
	GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (*domain.Department, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Department, error)
	ListCodes(ctx context.Context, tenantID uuid.UUID) ([]string, error)
	Update(ctx context.Context, dept *domain.Department) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string, excludeID *uuid.UUID) (bool, error)
}

type departmentRepository struct {
	db *gorm.DB
}

// NewDepartmentRepository создаёт новый экземпляр репозитория
func NewDepartmentRepository(db *gorm.DB) DepartmentRepository {
	return &departmentRepository{db: db}
}

func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	err := conn(ctx, r.db).Create(dept).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *departmentRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*domain.Department, error) {
	var dept domain.Department
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (*domain.Department, error) {
	var dept domain.Department
	err := conn(ctx, r.db).
		Where("tenant_id = ? AND code_key = ?", tenantID, domain.CodeKey(code)).
		First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Department, error) {
	var depts []domain.Department
	err := conn(ctx, r.db).
		Where("tenant_id = ?", tenantID).
		Order("code_key ASC").
		Find(&depts).Error
	return depts, err
}

func (r *departmentRepository) ListCodes(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	var codes []string
	err := conn(ctx, r.db).
		Model(&domain.Department{}).
		Where("tenant_id = ?", tenantID).
		Order("code_key ASC").
		Pluck("code", &codes).Error
	return codes, err
}

func (r *departmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	err := conn(ctx, r.db).Save(dept).Error
	if isUniqueViolation(err) {
		return domain.ErrDuplicateCode
	}
	return err
}

func (r *departmentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result := conn(ctx, r.db).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&domain.Department{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrDepartmentNotFound
	}
	return nil
}

func (r *departmentRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := conn(ctx, r.db).
		Model(&domain.Department{}).
		Where("tenant_id = ? AND code_key = ?", tenantID, domain.CodeKey(code))

	if excludeID != nil {
		query = query.Where("id <> ?", *excludeID)
	}

	err := query.Count(&count).Error
	return count > 0, err
}
