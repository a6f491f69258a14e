package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tenant-onboarding/internal/domain"
)

func TestTracker_CompleteStepRequiresCurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	for _, step := range []int{2, 3, 9} {
		_, err := env.tracker.CompleteStep(ctx, tenant, step)
		require.ErrorIs(t, err, domain.ErrInvalidStepOrder, "step %d", step)
	}

	p, err := env.tracker.GetProgress(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, p.CurrentStep)
	require.Empty(t, p.CompletedSteps)
}

func TestTracker_RequiredStepNeedsSavedPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	_, err := env.tracker.CompleteStep(ctx, tenant, 1)
	require.ErrorIs(t, err, domain.ErrInvalidStepOrder)

	require.NoError(t, env.steps.Save(ctx, &domain.StepData{TenantID: tenant, Step: 1, Payload: []byte(validCompany)}))
	p, err := env.tracker.CompleteStep(ctx, tenant, 1)
	require.NoError(t, err)
	require.Equal(t, 2, p.CurrentStep)

	// Необязательный шаг завершается без данных
	p, err = env.tracker.CompleteStep(ctx, tenant, 2)
	require.NoError(t, err)
	require.Equal(t, 3, p.CurrentStep)
}

func TestTracker_RecompletingLowerStepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	require.NoError(t, env.steps.Save(ctx, &domain.StepData{TenantID: tenant, Step: 1, Payload: []byte(validCompany)}))
	_, err := env.tracker.CompleteStep(ctx, tenant, 1)
	require.NoError(t, err)
	_, err = env.tracker.CompleteStep(ctx, tenant, 2)
	require.NoError(t, err)

	p, err := env.tracker.CompleteStep(ctx, tenant, 1)
	require.NoError(t, err)
	require.Equal(t, 3, p.CurrentStep)
	require.Equal(t, []int{1, 2}, []int(p.CompletedSteps))
}

func TestTracker_GoToStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant := uuid.New()

	// Шаг 1 обязательный - перепрыгнуть нельзя
	_, err := env.tracker.GoToStep(ctx, tenant, 2)
	require.ErrorIs(t, err, domain.ErrStepNotSkippable)

	require.NoError(t, env.steps.Save(ctx, &domain.StepData{TenantID: tenant, Step: 1, Payload: []byte(validCompany)}))
	_, err = env.tracker.CompleteStep(ctx, tenant, 1)
	require.NoError(t, err)

	// 2 пропускается, 3 обязательный
	_, err = env.tracker.GoToStep(ctx, tenant, 4)
	require.ErrorIs(t, err, domain.ErrStepNotSkippable)

	p, err := env.tracker.GoToStep(ctx, tenant, 3)
	require.NoError(t, err)
	require.Equal(t, 3, p.CurrentStep)
	require.Equal(t, []int{2}, []int(p.SkippedSteps))
	require.Equal(t, []int{1}, []int(p.CompletedSteps))

	// Назад - без изменений
	back, err := env.tracker.GoToStep(ctx, tenant, 1)
	require.NoError(t, err)
	require.Equal(t, 3, back.CurrentStep)

	_, err = env.tracker.GoToStep(ctx, tenant, 42)
	require.ErrorIs(t, err, domain.ErrInvalidStep)
}

func TestTracker_CompletedStepsHaveNoUnexplainedGaps(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.New()

	saveStep(t, env, tenant, 1, validCompany)
	skipStep(t, env, tenant, 2)
	saveStep(t, env, tenant, 3, validLabor)
	skipStep(t, env, tenant, 4)
	skipStep(t, env, tenant, 5)
	p := saveStep(t, env, tenant, 6, validAdmins)

	top := p.CompletedSteps[len(p.CompletedSteps)-1]
	for n := domain.FirstStep; n <= top; n++ {
		require.True(t, p.IsCompleted(n) || p.IsSkipped(n), "step %d is neither completed nor skipped", n)
		if p.IsSkipped(n) {
			require.True(t, domain.Steps[n].Skippable)
		}
	}
	require.LessOrEqual(t, p.CurrentStep, top+1)
}
