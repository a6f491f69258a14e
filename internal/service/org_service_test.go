package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/dto"
)

func ptr[T any](v T) *T { return &v }

func TestOrg_DepartmentCodeIsUniquePerTenantIgnoringCase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	dept, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: " TI ", Name: "Tecnologia"})
	require.NoError(t, err)
	require.Equal(t, "TI", dept.Code)

	_, err = env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "ti", Name: "Outro"})
	require.ErrorIs(t, err, domain.ErrDuplicateCode)

	_, err = env.org.CreateDepartment(ctx, uuid.New(), &dto.CreateDepartmentRequest{Code: "TI", Name: "Outro arrendatário"})
	require.NoError(t, err)

	found, err := env.org.FindDepartmentByCode(ctx, tenant, "Ti")
	require.NoError(t, err)
	require.Equal(t, dept.ID, found.ID)
}

func TestOrg_UpdateDepartment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	ti, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "TI", Name: "Tecnologia"})
	require.NoError(t, err)
	_, err = env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "RH", Name: "Recursos Humanos"})
	require.NoError(t, err)

	_, err = env.org.UpdateDepartment(ctx, tenant, ti.ID, &dto.UpdateDepartmentRequest{Code: ptr("rh")})
	require.ErrorIs(t, err, domain.ErrDuplicateCode)

	// Смена регистра собственного кода допустима
	updated, err := env.org.UpdateDepartment(ctx, tenant, ti.ID, &dto.UpdateDepartmentRequest{Code: ptr("ti"), Name: ptr("TI e Dados")})
	require.NoError(t, err)
	require.Equal(t, "ti", updated.Code)
	require.Equal(t, "TI e Dados", updated.Name)

	_, err = env.org.UpdateDepartment(ctx, uuid.New(), ti.ID, &dto.UpdateDepartmentRequest{Name: ptr("x")})
	require.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}

func TestOrg_DeleteDepartmentWithPositionsIsRefused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	dept, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "TI", Name: "Tecnologia"})
	require.NoError(t, err)
	pos, err := env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "Desenvolvedor", DepartmentID: dept.ID})
	require.NoError(t, err)

	require.ErrorIs(t, env.org.DeleteDepartment(ctx, tenant, dept.ID), domain.ErrHasDependentPositions)

	_, err = env.org.GetDepartment(ctx, tenant, dept.ID)
	require.NoError(t, err, "department must survive a refused delete")

	require.NoError(t, env.org.DeletePosition(ctx, tenant, pos.ID))
	require.NoError(t, env.org.DeleteDepartment(ctx, tenant, dept.ID))

	_, err = env.org.GetDepartment(ctx, tenant, dept.ID)
	require.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}

func TestOrg_PositionNeedsDepartmentOfSameTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	other, err := env.org.CreateDepartment(ctx, uuid.New(), &dto.CreateDepartmentRequest{Code: "TI", Name: "Tecnologia"})
	require.NoError(t, err)

	_, err = env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "Dev", DepartmentID: other.ID})
	require.ErrorIs(t, err, domain.ErrDepartmentNotFound)

	_, err = env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "Dev", DepartmentID: uuid.New()})
	require.ErrorIs(t, err, domain.ErrDepartmentNotFound)
}

func TestOrg_UpdateAndListPositions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	ti, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "TI", Name: "Tecnologia"})
	require.NoError(t, err)
	rh, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "RH", Name: "Recursos Humanos"})
	require.NoError(t, err)

	dev, err := env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "Desenvolvedor", DepartmentID: ti.ID})
	require.NoError(t, err)
	_, err = env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "ANL", Title: "Analista", DepartmentID: rh.ID})
	require.NoError(t, err)

	_, err = env.org.UpdatePosition(ctx, tenant, dev.ID, &dto.UpdatePositionRequest{Code: ptr("anl")})
	require.ErrorIs(t, err, domain.ErrDuplicateCode)

	moved, err := env.org.UpdatePosition(ctx, tenant, dev.ID, &dto.UpdatePositionRequest{DepartmentID: &rh.ID})
	require.NoError(t, err)
	require.Equal(t, rh.ID, moved.DepartmentID)

	inRH, err := env.org.ListPositions(ctx, tenant, &rh.ID)
	require.NoError(t, err)
	require.Len(t, inRH, 2)

	inTI, err := env.org.ListPositions(ctx, tenant, &ti.ID)
	require.NoError(t, err)
	require.Empty(t, inTI)

	codes, err := env.org.DepartmentCodes(ctx, tenant)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"TI", "RH"}, codes)
}

func TestOrg_BlankValuesAreRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "   ", Name: "x"})
	require.ErrorIs(t, err, domain.ErrValidationFailed)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "code")

	dept, err := env.org.CreateDepartment(ctx, tenant, &dto.CreateDepartmentRequest{Code: "TI", Name: "Tecnologia"})
	require.NoError(t, err)

	_, err = env.org.UpdateDepartment(ctx, tenant, dept.ID, &dto.UpdateDepartmentRequest{Name: ptr(" \t")})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "  ", DepartmentID: dept.ID})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	pos, err := env.org.CreatePosition(ctx, tenant, &dto.CreatePositionRequest{Code: "DEV", Title: "Desenvolvedor", DepartmentID: dept.ID})
	require.NoError(t, err)

	_, err = env.org.UpdatePosition(ctx, tenant, pos.ID, &dto.UpdatePositionRequest{Code: ptr("  ")})
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	departments, err := env.org.ListDepartments(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, departments, 1)
	require.Equal(t, "Tecnologia", departments[0].Name)
}
