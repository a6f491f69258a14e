package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/repository"
)

// OrgService определяет интерфейс бизнес-логики подразделений и должностей
type OrgService interface {
	CreateDepartment(ctx context.Context, tenantID uuid.UUID, req *dto.CreateDepartmentRequest) (*domain.Department, error)
	GetDepartment(ctx context.Context, tenantID, id uuid.UUID) (*domain.Department, error)
	FindDepartmentByCode(ctx context.Context, tenantID uuid.UUID, code string) (*domain.Department, error)
	ListDepartments(ctx context.Context, tenantID uuid.UUID) ([]domain.Department, error)
	DepartmentCodes(ctx context.Context, tenantID uuid.UUID) ([]string, error)
	UpdateDepartment(ctx context.Context, tenantID, id uuid.UUID, req *dto.UpdateDepartmentRequest) (*domain.Department, error)
	DeleteDepartment(ctx context.Context, tenantID, id uuid.UUID) error

	CreatePosition(ctx context.Context, tenantID uuid.UUID, req *dto.CreatePositionRequest) (*domain.Position, error)
	GetPosition(ctx context.Context, tenantID, id uuid.UUID) (*domain.Position, error)
	ListPositions(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID) ([]domain.Position, error)
	UpdatePosition(ctx context.Context, tenantID, id uuid.UUID, req *dto.UpdatePositionRequest) (*domain.Position, error)
	DeletePosition(ctx context.Context, tenantID, id uuid.UUID) error
}

type orgService struct {
	locker   *lock.TenantLocker
	deptRepo repository.DepartmentRepository
	posRepo  repository.PositionRepository
}

// NewOrgService создаёт новый экземпляр сервиса
func NewOrgService(
	locker *lock.TenantLocker,
	deptRepo repository.DepartmentRepository,
	posRepo repository.PositionRepository,
) OrgService {
	return &orgService{
		locker:   locker,
		deptRepo: deptRepo,
		posRepo:  posRepo,
	}
}

func (s *orgService) CreateDepartment(ctx context.Context, tenantID uuid.UUID, req *dto.CreateDepartmentRequest) (*domain.Department, error) {
	code := strings.TrimSpace(req.Code)
	name := strings.TrimSpace(req.Name)
	if err := requireTrimmed(map[string]string{"code": code, "name": name}); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	// Проверяем уникальность кода в пределах арендатора
	exists, err := s.deptRepo.ExistsByCode(ctx, tenantID, code, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateCode
	}

	dept := &domain.Department{
		TenantID: tenantID,
		Code:     code,
		Name:     name,
	}

	// Уникальный индекс остаётся последней защитой от гонки с импортом
	if err := s.deptRepo.Create(ctx, dept); err != nil {
		return nil, err
	}

	return dept, nil
}

func (s *orgService) GetDepartment(ctx context.Context, tenantID, id uuid.UUID) (*domain.Department, error) {
	return s.deptRepo.GetByID(ctx, tenantID, id)
}

func (s *orgService) FindDepartmentByCode(ctx context.Context, tenantID uuid.UUID, code string) (*domain.Department, error) {
	return s.deptRepo.GetByCode(ctx, tenantID, code)
}

func (s *orgService) ListDepartments(ctx context.Context, tenantID uuid.UUID) ([]domain.Department, error) {
	return s.deptRepo.List(ctx, tenantID)
}

func (s *orgService) DepartmentCodes(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return s.deptRepo.ListCodes(ctx, tenantID)
}

func (s *orgService) UpdateDepartment(ctx context.Context, tenantID, id uuid.UUID, req *dto.UpdateDepartmentRequest) (*domain.Department, error) {
	changed := make(map[string]string, 2)
	if req.Code != nil {
		changed["code"] = *req.Code
	}
	if req.Name != nil {
		changed["name"] = *req.Name
	}
	if err := requireTrimmed(changed); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	dept, err := s.deptRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	// Обновляем код, если передан
	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)

		exists, err := s.deptRepo.ExistsByCode(ctx, tenantID, code, &id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateCode
		}

		dept.Code = code
	}

	if req.Name != nil {
		dept.Name = strings.TrimSpace(*req.Name)
	}

	if err := s.deptRepo.Update(ctx, dept); err != nil {
		return nil, err
	}

	return dept, nil
}

// DeleteDepartment не каскадирует: при наличии должностей ничего не удаляется
func (s *orgService) DeleteDepartment(ctx context.Context, tenantID, id uuid.UUID) error {
	unlock := s.locker.Lock(tenantID)
	defer unlock()

	if _, err := s.deptRepo.GetByID(ctx, tenantID, id); err != nil {
		return err
	}

	count, err := s.posRepo.CountByDepartment(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrHasDependentPositions
	}

	return s.deptRepo.Delete(ctx, tenantID, id)
}

func (s *orgService) CreatePosition(ctx context.Context, tenantID uuid.UUID, req *dto.CreatePositionRequest) (*domain.Position, error) {
	code := strings.TrimSpace(req.Code)
	title := strings.TrimSpace(req.Title)
	if err := requireTrimmed(map[string]string{"code": code, "title": title}); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	// Подразделение должно существовать у того же арендатора
	if _, err := s.deptRepo.GetByID(ctx, tenantID, req.DepartmentID); err != nil {
		return nil, err
	}

	exists, err := s.posRepo.ExistsByCode(ctx, tenantID, code, nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateCode
	}

	pos := &domain.Position{
		TenantID:     tenantID,
		Code:         code,
		Title:        title,
		DepartmentID: req.DepartmentID,
	}

	if err := s.posRepo.Create(ctx, pos); err != nil {
		return nil, err
	}

	return pos, nil
}

func (s *orgService) GetPosition(ctx context.Context, tenantID, id uuid.UUID) (*domain.Position, error) {
	return s.posRepo.GetByID(ctx, tenantID, id)
}

func (s *orgService) ListPositions(ctx context.Context, tenantID uuid.UUID, departmentID *uuid.UUID) ([]domain.Position, error) {
	return s.posRepo.List(ctx, tenantID, departmentID)
}

func (s *orgService) UpdatePosition(ctx context.Context, tenantID, id uuid.UUID, req *dto.UpdatePositionRequest) (*domain.Position, error) {
	changed := make(map[string]string, 2)
	if req.Code != nil {
		changed["code"] = *req.Code
	}
	if req.Title != nil {
		changed["title"] = *req.Title
	}
	if err := requireTrimmed(changed); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	pos, err := s.posRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Code != nil {
		code := strings.TrimSpace(*req.Code)

		exists, err := s.posRepo.ExistsByCode(ctx, tenantID, code, &id)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateCode
		}

		pos.Code = code
	}

	if req.Title != nil {
		pos.Title = strings.TrimSpace(*req.Title)
	}

	// Перенос в другое подразделение
	if req.DepartmentID != nil {
		if _, err := s.deptRepo.GetByID(ctx, tenantID, *req.DepartmentID); err != nil {
			return nil, err
		}
		pos.DepartmentID = *req.DepartmentID
	}

	if err := s.posRepo.Update(ctx, pos); err != nil {
		return nil, err
	}

	return pos, nil
}

func (s *orgService) DeletePosition(ctx context.Context, tenantID, id uuid.UUID) error {
	unlock := s.locker.Lock(tenantID)
	defer unlock()

	return s.posRepo.Delete(ctx, tenantID, id)
}

// requireTrimmed отклоняет значения, пустые после обрезки пробелов
func requireTrimmed(values map[string]string) error {
	fields := make(map[string]string)
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			fields[name] = "is required"
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return domain.NewValidationError(fields)
}

