package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StepPayload - данные одного шага мастера. Конкретный тип определяется номером шага.
type StepPayload interface {
	StepNumber() int
}

// CompanyProfile - шаг 1
type CompanyProfile struct {
	LegalName    string `json:"legalName" validate:"required,max=200"`
	TradeName    string `json:"tradeName" validate:"max=200"`
	TaxID        string `json:"taxId" validate:"required,cnpj"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone"`
	AddressLine  string `json:"addressLine"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	EmployeesEst int    `json:"employeesEstimate"`
}

func (CompanyProfile) StepNumber() int { return 1 }

// OrgStructure - шаг 2
type OrgStructure struct {
	Method       string      `json:"method"`
	ImportJobIDs []uuid.UUID `json:"importJobIds,omitempty"`
}

func (OrgStructure) StepNumber() int { return 2 }

// LaborRules - шаг 3
type LaborRules struct {
	WeeklyHours              decimal.Decimal `json:"weeklyHours"`
	DailyHours               decimal.Decimal `json:"dailyHours"`
	ToleranceMinutes         int             `json:"toleranceMinutes"`
	OvertimeRequiresApproval bool            `json:"overtimeRequiresApproval"`
	AnnualVacationDays       int             `json:"annualVacationDays"`
}

func (LaborRules) StepNumber() int { return 3 }

// Branding - шаг 4
type Branding struct {
	LogoURL        string `json:"logoUrl"`
	LogoWidth      int    `json:"logoWidth"`
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	AccentColor    string `json:"accentColor"`
	FontFamily     string `json:"fontFamily"`
	BaseFontSize   int    `json:"baseFontSize"`
}

func (Branding) StepNumber() int { return 4 }

// Модули, которые нельзя отключить.
var CoreModules = []string{"employees", "organization", "settings"}

// AvailableModules - фиксированный набор ключей модулей.
var AvailableModules = []string{
	"employees", "organization", "settings",
	"time_tracking", "events", "learning", "talent_pool", "payroll", "reports",
}

// Modules - шаг 5
type Modules struct {
	Enabled map[string]bool `json:"enabled"`
}

func (Modules) StepNumber() int { return 5 }

// Normalize включает обязательные модули и отбрасывает неизвестные ключи.
func (m *Modules) Normalize() {
	out := make(map[string]bool, len(AvailableModules))
	for _, key := range AvailableModules {
		out[key] = m.Enabled[key]
	}
	for _, key := range CoreModules {
		out[key] = true
	}
	m.Enabled = out
}

// Administrator - администратор, вводимый на шаге 6
type Administrator struct {
	Name                 string `json:"name" validate:"required"`
	Email                string `json:"email" validate:"required"`
	Password             string `json:"password,omitempty" validate:"required"`
	PasswordConfirmation string `json:"passwordConfirmation,omitempty" validate:"eqfield=Password"`
	PasswordHash         string `json:"passwordHash,omitempty"`
}

// Administrators - шаг 6
type Administrators struct {
	Admins []Administrator `json:"admins" validate:"min=1,dive"`
}

func (Administrators) StepNumber() int { return 6 }

// GovernmentReporting - интеграция с госотчётностью по персоналу
type GovernmentReporting struct {
	Enabled         bool   `json:"enabled"`
	Environment     string `json:"environment"`
	CertificateRef  string `json:"certificateRef"`
	TransmitterCode string `json:"transmitterCode"`
}

type AccountingIntegration struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	APIURL   string `json:"apiUrl"`
	APIKey   string `json:"apiKey"`
}

type ERPIntegration struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	BaseURL  string `json:"baseUrl"`
	ClientID string `json:"clientId"`
	Secret   string `json:"secret"`
}

type BenefitsIntegration struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"`
	ContractRef string `json:"contractRef"`
	APIKey      string `json:"apiKey"`
}

// Integrations - шаг 7
type Integrations struct {
	Government GovernmentReporting   `json:"government"`
	Accounting AccountingIntegration `json:"accounting"`
	ERP        ERPIntegration        `json:"erp"`
	Benefits   BenefitsIntegration   `json:"benefits"`
}

func (Integrations) StepNumber() int { return 7 }

// DataImport - шаг 8
type DataImport struct {
	ImportJobIDs []uuid.UUID `json:"importJobIds,omitempty"`
	Notes        string      `json:"notes"`
}

func (DataImport) StepNumber() int { return 8 }

// Review - шаг 9
type Review struct {
	Confirmed bool `json:"confirmed"`
}

func (Review) StepNumber() int { return 9 }

// NewStepPayload возвращает пустую структуру для шага.
func NewStepPayload(step int) (StepPayload, error) {
	switch step {
	case 1:
		return &CompanyProfile{}, nil
	case 2:
		return &OrgStructure{Method: "manual"}, nil
	case 3:
		return &LaborRules{
			WeeklyHours:        decimal.NewFromInt(44),
			DailyHours:         decimal.NewFromInt(8),
			ToleranceMinutes:   10,
			AnnualVacationDays: 30,
		}, nil
	case 4:
		return &Branding{
			PrimaryColor:   "#1E3A8A",
			SecondaryColor: "#64748B",
			AccentColor:    "#F59E0B",
			FontFamily:     "Inter",
			BaseFontSize:   14,
			LogoWidth:      160,
		}, nil
	case 5:
		m := &Modules{}
		m.Normalize()
		return m, nil
	case 6:
		return &Administrators{}, nil
	case 7:
		return &Integrations{}, nil
	case 8:
		return &DataImport{}, nil
	case 9:
		return &Review{}, nil
	default:
		return nil, ErrInvalidStep
	}
}

// DecodeStepPayload разбирает JSON в структуру шага. Неизвестные поля игнорируются,
// несовпадение типов возвращает ошибку.
func DecodeStepPayload(step int, raw []byte) (StepPayload, error) {
	payload, err := NewStepPayload(step)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("decode step %d payload: %w", step, err)
	}
	return payload, nil
}
