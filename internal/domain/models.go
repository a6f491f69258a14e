package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

var codeFolder = cases.Fold()

// CodeKey приводит код к виду для сравнения без учёта регистра.
func CodeKey(code string) string {
	return codeFolder.String(strings.TrimSpace(code))
}

// Department представляет подразделение организации
type Department struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:ux_departments_tenant_code,priority:1"`
	Code      string    `json:"code" gorm:"type:varchar(50);not null"`
	CodeKey   string    `json:"-" gorm:"type:varchar(50);not null;uniqueIndex:ux_departments_tenant_code,priority:2"`
	Name      string    `json:"name" gorm:"type:varchar(200);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName задаёт имя таблицы для GORM
func (Department) TableName() string {
	return "departments"
}

func (d *Department) BeforeCreate(_ *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (d *Department) BeforeSave(_ *gorm.DB) error {
	d.CodeKey = CodeKey(d.Code)
	return nil
}

// Position представляет должность, привязанную к подразделению
type Position struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;uniqueIndex:ux_positions_tenant_code,priority:1"`
	Code         string    `json:"code" gorm:"type:varchar(50);not null"`
	CodeKey      string    `json:"-" gorm:"type:varchar(50);not null;uniqueIndex:ux_positions_tenant_code,priority:2"`
	Title        string    `json:"title" gorm:"type:varchar(200);not null"`
	DepartmentID uuid.UUID `json:"department_id" gorm:"type:uuid;not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Department *Department `json:"-" gorm:"foreignKey:DepartmentID;constraint:OnDelete:RESTRICT"`
}

// TableName задаёт имя таблицы для GORM
func (Position) TableName() string {
	return "positions"
}

func (p *Position) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Position) BeforeSave(_ *gorm.DB) error {
	p.CodeKey = CodeKey(p.Code)
	return nil
}
