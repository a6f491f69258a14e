package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FirstStep = 1
	LastStep  = 9
)

// StepDefinition описывает шаг мастера настройки.
type StepDefinition struct {
	Number    int    `json:"number"`
	Key       string `json:"key"`
	Required  bool   `json:"required"`
	Skippable bool   `json:"skippable"`
	Terminal  bool   `json:"terminal"`
}

// Steps - таблица шагов мастера по номеру шага.
var Steps = map[int]StepDefinition{
	1: {Number: 1, Key: "company", Required: true},
	2: {Number: 2, Key: "org_structure", Skippable: true},
	3: {Number: 3, Key: "labor_rules", Required: true},
	4: {Number: 4, Key: "branding", Skippable: true},
	5: {Number: 5, Key: "modules", Skippable: true},
	6: {Number: 6, Key: "administrators", Required: true},
	7: {Number: 7, Key: "integrations", Skippable: true},
	8: {Number: 8, Key: "data_import", Skippable: true},
	9: {Number: 9, Key: "review", Terminal: true},
}

// LookupStep возвращает описание шага или ErrInvalidStep.
func LookupStep(step int) (StepDefinition, error) {
	def, ok := Steps[step]
	if !ok {
		return StepDefinition{}, ErrInvalidStep
	}
	return def, nil
}

// RequiredSteps возвращает обязательные шаги в порядке возрастания.
func RequiredSteps() []int {
	var out []int
	for n := FirstStep; n <= LastStep; n++ {
		if Steps[n].Required {
			out = append(out, n)
		}
	}
	return out
}

// SetupProgress - состояние мастера для одного арендатора
type SetupProgress struct {
	TenantID       uuid.UUID                `json:"tenant_id" gorm:"type:uuid;primaryKey"`
	CurrentStep    int                      `json:"current_step" gorm:"not null;default:1"`
	CompletedSteps datatypes.JSONSlice[int] `json:"completed_steps" gorm:"not null"`
	SkippedSteps   datatypes.JSONSlice[int] `json:"skipped_steps" gorm:"not null"`
	Activated      bool                     `json:"activated" gorm:"not null;default:false"`
	ActivatedAt    *time.Time               `json:"activated_at"`
	CreatedAt      time.Time                `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time                `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName задаёт имя таблицы для GORM
func (SetupProgress) TableName() string {
	return "setup_progress"
}

func NewSetupProgress(tenantID uuid.UUID) *SetupProgress {
	return &SetupProgress{
		TenantID:       tenantID,
		CurrentStep:    FirstStep,
		CompletedSteps: datatypes.JSONSlice[int]{},
		SkippedSteps:   datatypes.JSONSlice[int]{},
	}
}

func (p *SetupProgress) IsCompleted(step int) bool {
	return slices.Contains(p.CompletedSteps, step)
}

func (p *SetupProgress) IsSkipped(step int) bool {
	return slices.Contains(p.SkippedSteps, step)
}

func (p *SetupProgress) MarkCompleted(step int) {
	if p.IsCompleted(step) {
		return
	}
	p.CompletedSteps = append(p.CompletedSteps, step)
	slices.Sort(p.CompletedSteps)
}

func (p *SetupProgress) MarkSkipped(step int) {
	if p.IsSkipped(step) || p.IsCompleted(step) {
		return
	}
	p.SkippedSteps = append(p.SkippedSteps, step)
	slices.Sort(p.SkippedSteps)
}

// MissingRequiredBefore возвращает первый незавершённый обязательный шаг до step.
func (p *SetupProgress) MissingRequiredBefore(step int) (int, bool) {
	for _, n := range RequiredSteps() {
		if n >= step {
			break
		}
		if !p.IsCompleted(n) {
			return n, true
		}
	}
	return 0, false
}

// Clone возвращает независимую копию состояния.
func (p *SetupProgress) Clone() *SetupProgress {
	out := *p
	out.CompletedSteps = slices.Clone(p.CompletedSteps)
	out.SkippedSteps = slices.Clone(p.SkippedSteps)
	if p.ActivatedAt != nil {
		at := *p.ActivatedAt
		out.ActivatedAt = &at
	}
	return &out
}

// StepData - сохранённые данные шага
type StepData struct {
	TenantID  uuid.UUID      `json:"tenant_id" gorm:"type:uuid;primaryKey"`
	Step      int            `json:"step" gorm:"primaryKey;autoIncrement:false"`
	Payload   datatypes.JSON `json:"payload" gorm:"not null"`
	Draft     bool           `json:"draft" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName задаёт имя таблицы для GORM
func (StepData) TableName() string {
	return "step_data"
}
