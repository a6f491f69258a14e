package service

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tenant-onboarding/internal/domain"
	"github.com/xuri/excelize/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// importRow - строка данных файла. Number считается от первой строки после заголовка.
type importRow struct {
	Number int
	Cells  []string
}

// importTable - файл импорта, сопоставленный с шаблоном
type importTable struct {
	columns map[string]int
	width   int
	rows    []importRow
}

func (t *importTable) value(row importRow, column string) string {
	idx, ok := t.columns[column]
	if !ok || idx >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[idx])
}

func (t *importTable) has(column string) bool {
	_, ok := t.columns[column]
	return ok
}

// parseImportFile читает CSV или XLSX и проверяет заголовок по шаблону.
// Любая ошибка здесь делает файл целиком непригодным.
func parseImportFile(r io.Reader, contentType string, tpl Template) (*importTable, error) {
	var (
		records [][]string
		err     error
		padded  bool
	)
	if strings.HasPrefix(contentType, xlsxContentType) {
		records, err = readXLSX(r)
		padded = true
	} else {
		records, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}

	columns, err := bindHeader(tpl, records[0])
	if err != nil {
		return nil, err
	}

	table := &importTable{columns: columns, width: len(records[0])}
	wrongWidth := 0
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		// excelize отбрасывает пустые ячейки в конце строки
		if padded && len(rec) < table.width {
			rec = append(rec, make([]string, table.width-len(rec))...)
		}
		if len(rec) != table.width {
			wrongWidth++
		}
		table.rows = append(table.rows, importRow{Number: i + 1, Cells: rec})
	}

	if len(table.rows) > 0 && wrongWidth == len(table.rows) {
		return nil, fmt.Errorf("no row matches the %d header columns", table.width)
	}
	return table, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	br := stripUTF8BOM(bufio.NewReader(r))

	reader := csv.NewReader(br)
	reader.Comma = detectDelimiter(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	for _, rec := range records {
		for _, cell := range rec {
			if !utf8.ValidString(cell) {
				return nil, fmt.Errorf("file is not valid UTF-8")
			}
		}
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// detectDelimiter выбирает ';' для выгрузок из табличных редакторов с такой локалью
func detectDelimiter(r *bufio.Reader) rune {
	peek, _ := r.Peek(4096)
	line, _, _ := bytes.Cut(peek, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// bindHeader сопоставляет колонки файла с шаблоном без учёта регистра.
// Для должностей вместо departmentCode допускается departmentId.
func bindHeader(tpl Template, header []string) (map[string]int, error) {
	allowed := make(map[string]string, len(tpl.Columns)+1)
	for _, c := range tpl.Columns {
		allowed[strings.ToLower(c.Name)] = c.Name
	}
	if tpl.TargetType == domain.TargetPositions {
		allowed[strings.ToLower(ColumnDepartmentID)] = ColumnDepartmentID
	}

	columns := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		canonical, ok := allowed[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unexpected header column: %q", name)
		}
		if _, dup := columns[canonical]; dup {
			return nil, fmt.Errorf("duplicate header column: %s", canonical)
		}
		columns[canonical] = i
	}

	for _, c := range tpl.Columns {
		if !c.Required {
			continue
		}
		if _, ok := columns[c.Name]; ok {
			continue
		}
		if c.Name == ColumnDepartmentCode {
			if _, ok := columns[ColumnDepartmentID]; ok {
				continue
			}
		}
		return nil, fmt.Errorf("missing required header column: %s", c.Name)
	}
	return columns, nil
}

func blank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
