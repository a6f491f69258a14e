package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tenant-onboarding/internal/domain"
)

func saveStep(t *testing.T, env *testEnv, tenant uuid.UUID, step int, payload string) *domain.SetupProgress {
	t.Helper()
	res, err := env.wizard.SaveStep(context.Background(), tenant, step, []byte(payload))
	require.NoError(t, err, "step %d", step)
	return res.Progress
}

func skipStep(t *testing.T, env *testEnv, tenant uuid.UUID, step int) *domain.SetupProgress {
	t.Helper()
	p, err := env.wizard.SkipStep(context.Background(), tenant, step)
	require.NoError(t, err, "skip %d", step)
	return p
}

func TestWizard_FreshTenantStartsAtStepOne(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.wizard.GetProgress(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Equal(t, 1, p.CurrentStep)
	require.Empty(t, p.CompletedSteps)
	require.False(t, p.Activated)
}

func TestWizard_FullRunActivatesTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	p := saveStep(t, env, tenant, 1, validCompany)
	require.Equal(t, 2, p.CurrentStep)

	p = skipStep(t, env, tenant, 2)
	require.Equal(t, 3, p.CurrentStep)
	require.Equal(t, []int{2}, []int(p.SkippedSteps))

	saveStep(t, env, tenant, 3, validLabor)
	saveStep(t, env, tenant, 4, `{"primaryColor": "#000000"}`)
	select {
	case got := <-env.refresher.calls:
		require.Equal(t, tenant, got)
	case <-time.After(2 * time.Second):
		t.Fatal("branding refresh was not triggered")
	}

	saveStep(t, env, tenant, 5, `{"enabled": {"payroll": true}}`)
	saveStep(t, env, tenant, 6, validAdmins)
	skipStep(t, env, tenant, 7)
	p = skipStep(t, env, tenant, 8)
	require.Equal(t, 9, p.CurrentStep)

	p = saveStep(t, env, tenant, 9, `{"confirmed": true}`)
	require.True(t, p.Activated)
	require.NotNil(t, p.ActivatedAt)
	require.Equal(t, []int{1, 3, 4, 5, 6, 9}, []int(p.CompletedSteps))

	// После активации мастер доступен только на чтение
	_, err := env.wizard.SaveStep(ctx, tenant, 1, []byte(validCompany))
	require.ErrorIs(t, err, domain.ErrSetupAlreadyActivated)
	_, err = env.wizard.SkipStep(ctx, tenant, 7)
	require.ErrorIs(t, err, domain.ErrSetupAlreadyActivated)
	_, err = env.wizard.SaveDraft(ctx, tenant, 2, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrSetupAlreadyActivated)
	_, err = env.tracker.CompleteStep(ctx, tenant, 9)
	require.ErrorIs(t, err, domain.ErrSetupAlreadyActivated)
}

func TestWizard_OutOfOrderSaveChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.wizard.SaveStep(ctx, tenant, 3, []byte(validLabor))
	require.ErrorIs(t, err, domain.ErrInvalidStepOrder)

	view, err := env.wizard.GetStep(ctx, tenant, 3)
	require.NoError(t, err)
	require.False(t, view.Found, "rejected save must not persist data")

	p, err := env.wizard.GetProgress(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, p.CurrentStep)
	require.Empty(t, p.CompletedSteps)
}

func TestWizard_InvalidStepNumber(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.wizard.SaveStep(ctx, uuid.New(), 10, []byte(`{}`))
	require.ErrorIs(t, err, domain.ErrInvalidStep)
	_, err = env.wizard.GetStep(ctx, uuid.New(), 0)
	require.ErrorIs(t, err, domain.ErrInvalidStep)
}

func TestWizard_CompanyValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.wizard.SaveStep(ctx, tenant, 1, []byte(`{"taxId": "11.222.333/0001-82"}`))
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "taxId")
	require.Contains(t, verr.Fields, "legalName")

	p, err := env.wizard.GetProgress(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, p.CurrentStep, "failed validation must not advance")

	// Несовпадение типов в JSON - тоже ошибка валидации
	_, err = env.wizard.SaveStep(ctx, tenant, 1, []byte(`{"legalName": 42}`))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "_payload")
}

func TestWizard_CompanyTaxIDIsNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)

	view, err := env.wizard.GetStep(ctx, tenant, 1)
	require.NoError(t, err)
	require.True(t, view.Found)
	require.Equal(t, "11222333000181", view.Payload.(*domain.CompanyProfile).TaxID)
}

func TestWizard_AdministratorsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	saveStep(t, env, tenant, 3, validLabor)
	skipStep(t, env, tenant, 4)
	skipStep(t, env, tenant, 5)

	var verr *domain.ValidationError

	_, err := env.wizard.SaveStep(ctx, tenant, 6, []byte(`{"admins": []}`))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "admins")

	_, err = env.wizard.SaveStep(ctx, tenant, 6, []byte(
		`{"admins": [{"name": "Ana", "email": "ana@acme.com.br", "password": "a", "passwordConfirmation": "b"}]}`))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "admins[0].passwordConfirmation")

	_, err = env.wizard.SaveStep(ctx, tenant, 6, []byte(`{"admins": [{"password": "a", "passwordConfirmation": "a"}]}`))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "admins[0].name")
	require.Contains(t, verr.Fields, "admins[0].email")

	res, err := env.wizard.SaveStep(ctx, tenant, 6, []byte(validAdmins))
	require.NoError(t, err)
	require.Equal(t, 7, res.Progress.CurrentStep)

	// Пароль хранится только в виде bcrypt-хэша и не возвращается
	stored, err := env.steps.Get(ctx, tenant, 6)
	require.NoError(t, err)
	var admins domain.Administrators
	require.NoError(t, json.Unmarshal(stored.Payload, &admins))
	require.Empty(t, admins.Admins[0].Password)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(admins.Admins[0].PasswordHash), []byte("s3cret!")))

	view, err := env.wizard.GetStep(ctx, tenant, 6)
	require.NoError(t, err)
	require.Empty(t, view.Payload.(*domain.Administrators).Admins[0].PasswordHash)
}

func TestWizard_ModulesAreNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	saveStep(t, env, tenant, 3, validLabor)
	skipStep(t, env, tenant, 4)
	saveStep(t, env, tenant, 5, `{"enabled": {"employees": false, "learning": true, "crm": true}}`)

	view, err := env.wizard.GetStep(ctx, tenant, 5)
	require.NoError(t, err)
	mods := view.Payload.(*domain.Modules)
	require.True(t, mods.Enabled["employees"])
	require.True(t, mods.Enabled["learning"])
	require.NotContains(t, mods.Enabled, "crm")
}

func TestWizard_ResaveCompletedStepKeepsProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	before := saveStep(t, env, tenant, 3, validLabor)
	require.Equal(t, 4, before.CurrentStep)

	after := saveStep(t, env, tenant, 1, `{"legalName": "Acme Nova Ltda", "taxId": "11444777000161"}`)
	require.Equal(t, 4, after.CurrentStep)
	require.Equal(t, []int(before.CompletedSteps), []int(after.CompletedSteps))

	view, err := env.wizard.GetStep(ctx, tenant, 1)
	require.NoError(t, err)
	require.Equal(t, "Acme Nova Ltda", view.Payload.(*domain.CompanyProfile).LegalName)
}

func TestWizard_RequiredStepsCannotBeSkipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	for _, step := range []int{1, 3, 6, 9} {
		_, err := env.wizard.SkipStep(ctx, tenant, step)
		require.ErrorIs(t, err, domain.ErrStepNotSkippable, "step %d", step)
	}

	// Пропуск не текущего шага
	_, err := env.wizard.SkipStep(ctx, tenant, 2)
	require.ErrorIs(t, err, domain.ErrInvalidStepOrder)
}

func TestWizard_DraftDoesNotComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)

	view, err := env.wizard.SaveDraft(ctx, tenant, 3, []byte(`{"weeklyHours": 40}`))
	require.NoError(t, err)
	require.True(t, view.Draft)

	got, err := env.wizard.GetStep(ctx, tenant, 3)
	require.NoError(t, err)
	require.True(t, got.Found)
	require.True(t, got.Draft)
	require.Equal(t, "40", got.Payload.(*domain.LaborRules).WeeklyHours.String())

	// Черновик не считается сохранёнными данными обязательного шага
	_, err = env.tracker.CompleteStep(ctx, tenant, 3)
	require.ErrorIs(t, err, domain.ErrInvalidStepOrder)

	// Черновик данных компании тоже проходит проверку CNPJ
	_, err = env.wizard.SaveDraft(ctx, uuid.New(), 1, []byte(`{"legalName": "X", "taxId": "123"}`))
	require.ErrorIs(t, err, domain.ErrValidationFailed)

	// Завершённый шаг черновиком не перезаписывается
	_, err = env.wizard.SaveDraft(ctx, tenant, 1, []byte(validCompany))
	require.ErrorIs(t, err, domain.ErrInvalidStepOrder)
}

func TestWizard_BrandingRefreshFailureDoesNotFailStep(t *testing.T) {
	env := newTestEnv(t)
	env.refresher.err = errBoom
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	saveStep(t, env, tenant, 3, validLabor)
	p := saveStep(t, env, tenant, 4, `{"primaryColor": "#FFFFFF"}`)
	require.Equal(t, 5, p.CurrentStep)

	select {
	case <-env.refresher.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("branding refresh was not triggered")
	}
}

func TestWizard_ConcurrentSavesForSameTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.wizard.SaveStep(ctx, tenant, 1, []byte(validCompany))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	p, err := env.wizard.GetProgress(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 2, p.CurrentStep)
	require.Equal(t, []int{1}, []int(p.CompletedSteps))
}

func TestWizard_TenantsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	saveStep(t, env, a, 1, validCompany)

	pb, err := env.wizard.GetProgress(ctx, b)
	require.NoError(t, err)
	require.Equal(t, 1, pb.CurrentStep)

	view, err := env.wizard.GetStep(ctx, b, 1)
	require.NoError(t, err)
	require.False(t, view.Found)
}

func TestWizard_Overview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	_, err := env.wizard.SaveDraft(ctx, tenant, 3, []byte(`{}`))
	require.NoError(t, err)

	ov, err := env.wizard.Overview(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, ov.Steps, 9)
	require.True(t, ov.Steps[0].Completed)
	require.True(t, ov.Steps[0].Saved)
	require.True(t, ov.Steps[1].Skipped)
	require.False(t, ov.Steps[1].Saved)
	require.True(t, ov.Steps[2].Draft)
	require.True(t, ov.Steps[8].Terminal)
}

func TestWizard_GetStepDefaults(t *testing.T) {
	env := newTestEnv(t)

	view, err := env.wizard.GetStep(context.Background(), uuid.New(), 3)
	require.NoError(t, err)
	require.False(t, view.Found)
	rules := view.Payload.(*domain.LaborRules)
	require.Equal(t, "44", rules.WeeklyHours.String())
	require.Equal(t, 30, rules.AnnualVacationDays)
}
