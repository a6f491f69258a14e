package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTemplateCmd_WritesCSV(t *testing.T) {
	out := filepath.Join(t.TempDir(), "positions.csv")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"template", "--type", "positions", "--out", out})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "code,title,departmentCode\n"))
}

func TestTemplateCmd_WritesXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "departments.xlsx")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"template", "--type", "DEPARTMENTS", "--format", "xlsx", "--out", out})
	require.NoError(t, cmd.Execute())

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Equal(t, []string{"code", "name"}, rows[0])
}

func TestTemplateCmd_RejectsUnknownInput(t *testing.T) {
	for _, args := range [][]string{
		{"template", "--type", "employees"},
		{"template", "--type", "departments", "--format", "pdf"},
		{"template", "--type", "departments", "--format", "xlsx"},
		{"migrate", "down"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		require.Error(t, cmd.Execute(), "args %v", args)
	}
}
