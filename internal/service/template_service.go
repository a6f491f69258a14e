package service

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Column - колонка шаблона импорта
type Column struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Template - схема файла импорта и примеры строк
type Template struct {
	TargetType domain.TargetType `json:"target_type"`
	Columns    []Column          `json:"columns"`
	SampleRows [][]string        `json:"sample_rows"`
}

// Header возвращает имена колонок в порядке шаблона
func (t Template) Header() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

const (
	ColumnCode           = "code"
	ColumnName           = "name"
	ColumnTitle          = "title"
	ColumnDepartmentCode = "departmentCode"
	ColumnDepartmentID   = "departmentId"
)

// TemplateService определяет генератор шаблонов импорта
type TemplateService interface {
	GetTemplate(targetType domain.TargetType) (Template, error)
	RenderCSV(targetType domain.TargetType) ([]byte, error)
	RenderXLSX(targetType domain.TargetType) ([]byte, error)
}

type templateService struct{}

// NewTemplateService создаёт новый экземпляр сервиса
func NewTemplateService() TemplateService {
	return templateService{}
}

// GetTemplate - чистая функция от типа: каждый вызов возвращает новую копию
// с одинаковым порядком колонок.
func (templateService) GetTemplate(targetType domain.TargetType) (Template, error) {
	switch targetType {
	case domain.TargetDepartments:
		return Template{
			TargetType: targetType,
			Columns: []Column{
				{Name: ColumnCode, Required: true},
				{Name: ColumnName, Required: true},
			},
			SampleRows: [][]string{
				{"ADM", "Administrativo"},
				{"TI", "Tecnologia da Informação"},
				{"RH", "Recursos Humanos"},
			},
		}, nil
	case domain.TargetPositions:
		return Template{
			TargetType: targetType,
			Columns: []Column{
				{Name: ColumnCode, Required: true},
				{Name: ColumnTitle, Required: true},
				{Name: ColumnDepartmentCode, Required: true},
			},
			SampleRows: [][]string{
				{"DEV-PL", "Desenvolvedor Pleno", "TI"},
				{"ANL-RH", "Analista de RH", "RH"},
				{"AUX-ADM", "Auxiliar Administrativo", "ADM"},
			},
		}, nil
	default:
		return Template{}, domain.ErrInvalidTargetType
	}
}

func (s templateService) RenderCSV(targetType domain.TargetType) ([]byte, error) {
	tpl, err := s.GetTemplate(targetType)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(tpl.Header()); err != nil {
		return nil, err
	}
	if err := w.WriteAll(tpl.SampleRows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s templateService) RenderXLSX(targetType domain.TargetType) ([]byte, error) {
	tpl, err := s.GetTemplate(targetType)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := append([][]string{tpl.Header()}, tpl.SampleRows...)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
