package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TargetType - тип сущностей в файле импорта
type TargetType string

const (
	TargetDepartments TargetType = "DEPARTMENTS"
	TargetPositions   TargetType = "POSITIONS"
)

// ParseTargetType принимает значение в любом регистре.
func ParseTargetType(s string) (TargetType, error) {
	switch TargetType(strings.ToUpper(strings.TrimSpace(s))) {
	case TargetDepartments:
		return TargetDepartments, nil
	case TargetPositions:
		return TargetPositions, nil
	default:
		return "", ErrInvalidTargetType
	}
}

// ImportStatus - статус задания импорта
type ImportStatus string

const (
	ImportUploaded   ImportStatus = "UPLOADED"
	ImportProcessing ImportStatus = "PROCESSING"
	ImportCompleted  ImportStatus = "COMPLETED"
	ImportFailed     ImportStatus = "FAILED"
)

func (s ImportStatus) Terminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// RowStatus - итог обработки строки
type RowStatus string

const (
	RowAccepted RowStatus = "accepted"
	RowRejected RowStatus = "rejected"
)

// RowResult - результат одной строки файла. Row - номер строки данных, начиная с 1.
type RowResult struct {
	Row      int          `json:"row"`
	Status   RowStatus    `json:"status"`
	EntityID *uuid.UUID   `json:"entity_id,omitempty"`
	Code     string       `json:"code,omitempty"`
	Reason   RowErrorKind `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// ImportJob - одна попытка загрузки файла
type ImportJob struct {
	ID            uuid.UUID                      `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID                      `json:"tenant_id" gorm:"type:uuid;not null;index"`
	TargetType    TargetType                     `json:"target_type" gorm:"type:varchar(20);not null"`
	SourceFileRef string                         `json:"source_file_ref" gorm:"type:text;not null"`
	FileName      string                         `json:"file_name" gorm:"type:text"`
	ContentType   string                         `json:"content_type" gorm:"type:varchar(100)"`
	Status        ImportStatus                   `json:"status" gorm:"type:varchar(20);not null;index"`
	RowResults    datatypes.JSONSlice[RowResult] `json:"row_results"`
	AcceptedCount int                            `json:"accepted_count" gorm:"not null;default:0"`
	RejectedCount int                            `json:"rejected_count" gorm:"not null;default:0"`
	Error         string                         `json:"error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time                      `json:"created_at" gorm:"autoCreateTime"`
	StartedAt     *time.Time                     `json:"started_at"`
	CompletedAt   *time.Time                     `json:"completed_at"`

	// LeaseExpiresAt - до какого момента задание закреплено за исполнителем
	LeaseExpiresAt *time.Time `json:"-"`
}

// TableName задаёт имя таблицы для GORM
func (ImportJob) TableName() string {
	return "import_jobs"
}

func (j *ImportJob) BeforeCreate(_ *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
