package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tenant-onboarding/internal/domain"
)

// CreateDepartmentRequest - запрос на создание подразделения
type CreateDepartmentRequest struct {
	Code string `json:"code" validate:"required,min=1,max=50"`
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// UpdateDepartmentRequest - запрос на обновление подразделения
type UpdateDepartmentRequest struct {
	Code *string `json:"code" validate:"omitempty,min=1,max=50"`
	Name *string `json:"name" validate:"omitempty,min=1,max=200"`
}

// CreatePositionRequest - запрос на создание должности
type CreatePositionRequest struct {
	Code         string    `json:"code" validate:"required,min=1,max=50"`
	Title        string    `json:"title" validate:"required,min=1,max=200"`
	DepartmentID uuid.UUID `json:"department_id" validate:"required"`
}

// UpdatePositionRequest - запрос на обновление должности
type UpdatePositionRequest struct {
	Code         *string    `json:"code" validate:"omitempty,min=1,max=50"`
	Title        *string    `json:"title" validate:"omitempty,min=1,max=200"`
	DepartmentID *uuid.UUID `json:"department_id"`
}

// DepartmentResponse - ответ с данными подразделения
type DepartmentResponse struct {
	ID        uuid.UUID          `json:"id"`
	Code      string             `json:"code"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	Positions []PositionResponse `json:"positions,omitempty"`
}

// PositionResponse - ответ с данными должности
type PositionResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	DepartmentID uuid.UUID `json:"department_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// StepDefinitionResponse - описание шага для обзора мастера
type StepDefinitionResponse struct {
	domain.StepDefinition
	Completed bool `json:"completed"`
	Skipped   bool `json:"skipped"`
	Saved     bool `json:"saved"`
	Draft     bool `json:"draft"`
}

// ProgressResponse - состояние мастера
type ProgressResponse struct {
	TenantID       uuid.UUID                `json:"tenant_id"`
	CurrentStep    int                      `json:"current_step"`
	CompletedSteps []int                    `json:"completed_steps"`
	SkippedSteps   []int                    `json:"skipped_steps"`
	Activated      bool                     `json:"activated"`
	ActivatedAt    *time.Time               `json:"activated_at,omitempty"`
	Steps          []StepDefinitionResponse `json:"steps,omitempty"`
}

// StepResponse - данные шага; Found=false означает значения по умолчанию
type StepResponse struct {
	Step    int                `json:"step"`
	Found   bool               `json:"found"`
	Draft   bool               `json:"draft"`
	Payload domain.StepPayload `json:"payload"`
}

// SaveStepResponse - результат сохранения шага
type SaveStepResponse struct {
	Step     int                `json:"step"`
	Payload  domain.StepPayload `json:"payload"`
	Progress ProgressResponse   `json:"progress"`
}

// ImportJobResponse - состояние задания импорта
type ImportJobResponse struct {
	ID            uuid.UUID           `json:"id"`
	TargetType    domain.TargetType   `json:"target_type"`
	FileName      string              `json:"file_name"`
	Status        domain.ImportStatus `json:"status"`
	AcceptedCount int                 `json:"accepted_count"`
	RejectedCount int                 `json:"rejected_count"`
	Error         string              `json:"error,omitempty"`
	RowResults    []domain.RowResult  `json:"row_results,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	StartedAt     *time.Time          `json:"started_at,omitempty"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// RawPayload - тело запроса сохранения шага
type RawPayload = json.RawMessage
