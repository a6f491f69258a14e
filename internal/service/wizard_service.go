package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/branding"
	"github.com/tenant-onboarding/internal/domain"
	"github.com/tenant-onboarding/internal/lock"
	"github.com/tenant-onboarding/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const brandingStep = 4

// StepView - данные шага для формы мастера
type StepView struct {
	Step    int                `json:"step"`
	Found   bool               `json:"found"`
	Draft   bool               `json:"draft"`
	Payload domain.StepPayload `json:"payload"`
}

// SaveStepResult - итог сохранения и завершения шага
type SaveStepResult struct {
	Step     int                   `json:"step"`
	Payload  domain.StepPayload    `json:"payload"`
	Progress *domain.SetupProgress `json:"progress"`
}

// StepStatus - состояние одного шага в обзоре мастера
type StepStatus struct {
	domain.StepDefinition
	Completed bool `json:"completed"`
	Skipped   bool `json:"skipped"`
	Saved     bool `json:"saved"`
	Draft     bool `json:"draft"`
}

// Overview - прогресс и состояние всех шагов
type Overview struct {
	Progress *domain.SetupProgress `json:"progress"`
	Steps    []StepStatus          `json:"steps"`
}

// WizardService определяет интерфейс мастера настройки
type WizardService interface {
	GetProgress(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error)
	Overview(ctx context.Context, tenantID uuid.UUID) (*Overview, error)
	GetStep(ctx context.Context, tenantID uuid.UUID, step int) (*StepView, error)
	SaveStep(ctx context.Context, tenantID uuid.UUID, step int, raw []byte) (*SaveStepResult, error)
	SaveDraft(ctx context.Context, tenantID uuid.UUID, step int, raw []byte) (*StepView, error)
	SkipStep(ctx context.Context, tenantID uuid.UUID, step int) (*domain.SetupProgress, error)
}

type wizardService struct {
	locker       *lock.TenantLocker
	tx           repository.Transactor
	progressRepo repository.SetupProgressRepository
	stepRepo     repository.StepDataRepository
	tracker      *progressTracker
	refresher    branding.Refresher
	validator    *validator.Validate
	logger       *slog.Logger
	bcryptCost   int
}

// NewWizardService создаёт новый экземпляр сервиса. Трекер использует ту же блокировку арендатора.
func NewWizardService(
	locker *lock.TenantLocker,
	tx repository.Transactor,
	progressRepo repository.SetupProgressRepository,
	stepRepo repository.StepDataRepository,
	refresher branding.Refresher,
	logger *slog.Logger,
) WizardService {
	return &wizardService{
		locker:       locker,
		tx:           tx,
		progressRepo: progressRepo,
		stepRepo:     stepRepo,
		tracker:      newProgressTracker(locker, progressRepo, stepRepo),
		refresher:    refresher,
		validator:    NewValidator(),
		logger:       logger,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

func (s *wizardService) GetProgress(ctx context.Context, tenantID uuid.UUID) (*domain.SetupProgress, error) {
	return s.tracker.GetProgress(ctx, tenantID)
}

func (s *wizardService) Overview(ctx context.Context, tenantID uuid.UUID) (*Overview, error) {
	progress, err := s.tracker.GetProgress(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	saved, err := s.stepRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	drafts := make(map[int]bool, len(saved))
	for _, d := range saved {
		drafts[d.Step] = d.Draft
	}

	steps := make([]StepStatus, 0, domain.LastStep)
	for n := domain.FirstStep; n <= domain.LastStep; n++ {
		draft, ok := drafts[n]
		steps = append(steps, StepStatus{
			StepDefinition: domain.Steps[n],
			Completed:      progress.IsCompleted(n),
			Skipped:        progress.IsSkipped(n),
			Saved:          ok,
			Draft:          draft,
		})
	}

	return &Overview{Progress: progress, Steps: steps}, nil
}

func (s *wizardService) GetStep(ctx context.Context, tenantID uuid.UUID, step int) (*StepView, error) {
	if _, err := domain.LookupStep(step); err != nil {
		return nil, err
	}

	data, err := s.stepRepo.Get(ctx, tenantID, step)
	if errors.Is(err, domain.ErrStepDataNotFound) {
		payload, err := domain.NewStepPayload(step)
		if err != nil {
			return nil, err
		}
		return &StepView{Step: step, Payload: payload}, nil
	}
	if err != nil {
		return nil, err
	}

	payload, err := domain.DecodeStepPayload(step, data.Payload)
	if err != nil {
		return nil, fmt.Errorf("stored payload for step %d: %w", step, err)
	}
	redact(payload)

	return &StepView{Step: step, Found: true, Draft: data.Draft, Payload: payload}, nil
}

// SaveStep проверяет порядок, валидирует и сохраняет данные, затем завершает шаг.
// При любой ошибке ни данные, ни прогресс не меняются.
func (s *wizardService) SaveStep(ctx context.Context, tenantID uuid.UUID, step int, raw []byte) (*SaveStepResult, error) {
	unlock := s.locker.Lock(tenantID)
	defer unlock()

	progress, err := s.progressRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.tracker.checkCompletable(progress, step); err != nil {
		return nil, err
	}

	payload, err := s.prepare(step, raw)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode step %d payload: %w", step, err)
	}

	var (
		next     *domain.SetupProgress
		advanced bool
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.stepRepo.Save(ctx, &domain.StepData{
			TenantID: tenantID,
			Step:     step,
			Payload:  encoded,
		}); err != nil {
			return err
		}
		next, advanced, err = s.tracker.completeStep(ctx, tenantID, step)
		return err
	})
	if err != nil {
		return nil, err
	}

	if advanced {
		recordCompletion(step, next)
		s.logger.Info("setup step completed",
			slog.String("tenant_id", tenantID.String()),
			slog.Int("step", step),
			slog.Int("current_step", next.CurrentStep),
			slog.Bool("activated", next.Activated),
		)
	}

	if step == brandingStep {
		go s.refreshBranding(context.WithoutCancel(ctx), tenantID)
	}

	redact(payload)
	return &SaveStepResult{Step: step, Payload: payload, Progress: next}, nil
}

// SaveDraft сохраняет данные без завершения шага. Данные компании проверяются всегда.
func (s *wizardService) SaveDraft(ctx context.Context, tenantID uuid.UUID, step int, raw []byte) (*StepView, error) {
	if _, err := domain.LookupStep(step); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	progress, err := s.progressRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if progress.Activated {
		return nil, domain.ErrSetupAlreadyActivated
	}

	// Черновик не затирает уже завершённый шаг
	if progress.IsCompleted(step) {
		return nil, domain.ErrInvalidStepOrder
	}

	var payload domain.StepPayload
	if step == 1 {
		payload, err = s.prepare(step, raw)
	} else {
		payload, err = s.decode(step, raw)
	}
	if err != nil {
		return nil, err
	}

	// Пароли администраторов в черновике не сохраняются
	if admins, ok := payload.(*domain.Administrators); ok {
		for i := range admins.Admins {
			admins.Admins[i].Password = ""
			admins.Admins[i].PasswordConfirmation = ""
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode step %d payload: %w", step, err)
	}

	if err := s.stepRepo.Save(ctx, &domain.StepData{
		TenantID: tenantID,
		Step:     step,
		Payload:  encoded,
		Draft:    true,
	}); err != nil {
		return nil, err
	}

	redact(payload)
	return &StepView{Step: step, Found: true, Draft: true, Payload: payload}, nil
}

// SkipStep пропускает текущий необязательный шаг.
func (s *wizardService) SkipStep(ctx context.Context, tenantID uuid.UUID, step int) (*domain.SetupProgress, error) {
	def, err := domain.LookupStep(step)
	if err != nil {
		return nil, err
	}
	if !def.Skippable {
		return nil, domain.ErrStepNotSkippable
	}

	unlock := s.locker.Lock(tenantID)
	defer unlock()

	progress, err := s.progressRepo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if progress.Activated {
		return nil, domain.ErrSetupAlreadyActivated
	}
	if step != progress.CurrentStep {
		return nil, domain.ErrInvalidStepOrder
	}

	next, err := s.tracker.goToStep(ctx, tenantID, step+1)
	if err != nil {
		return nil, err
	}

	s.logger.Info("setup step skipped",
		slog.String("tenant_id", tenantID.String()),
		slog.Int("step", step),
	)
	return next, nil
}

func (s *wizardService) decode(step int, raw []byte) (domain.StepPayload, error) {
	payload, err := domain.DecodeStepPayload(step, raw)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStep) {
			return nil, err
		}
		return nil, domain.NewValidationError(map[string]string{"_payload": err.Error()})
	}
	return payload, nil
}

// prepare разбирает, валидирует и нормализует данные шага
func (s *wizardService) prepare(step int, raw []byte) (domain.StepPayload, error) {
	payload, err := s.decode(step, raw)
	if err != nil {
		return nil, err
	}

	if err := s.validator.Struct(payload); err != nil {
		if fields := ValidationFields(err); fields != nil {
			return nil, domain.NewValidationError(fields)
		}
		return nil, err
	}

	switch p := payload.(type) {
	case *domain.CompanyProfile:
		p.TaxID = domain.NormalizeTaxID(p.TaxID)
	case *domain.Modules:
		p.Normalize()
	case *domain.Administrators:
		for i := range p.Admins {
			hash, err := bcrypt.GenerateFromPassword([]byte(p.Admins[i].Password), s.bcryptCost)
			if err != nil {
				return nil, fmt.Errorf("hash administrator password: %w", err)
			}
			p.Admins[i].PasswordHash = string(hash)
			p.Admins[i].Password = ""
			p.Admins[i].PasswordConfirmation = ""
		}
	}
	return payload, nil
}

func (s *wizardService) refreshBranding(ctx context.Context, tenantID uuid.UUID) {
	if err := s.refresher.RefreshBranding(ctx, tenantID); err != nil {
		s.logger.Error("failed to refresh branding",
			slog.String("tenant_id", tenantID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// redact убирает хэши паролей из ответа
func redact(payload domain.StepPayload) {
	if admins, ok := payload.(*domain.Administrators); ok {
		for i := range admins.Admins {
			admins.Admins[i].PasswordHash = ""
		}
	}
}
