package mapping

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func templateRows() [][]string {
	return [][]string{
		{"FIELD CODE", "FIELD NAME", "For info: existing ECB or EBA NPL template field code"},
		{"RREL3", "Original Underlying Exposure Identifier", "AR3"},
		{"RREL6", "Data Cut-Off Date", "AR1"},
		{"RREL7", "Restructuring Date", ""},
	}
}

func TestFromRowsBasic(t *testing.T) {
	m, err := fromRows(templateRows())
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "RREL3", m.ToESMA("AR3"))
	assert.Equal(t, "AR3", m.ToECB("RREL3"))
}

func TestFromRowsSkipsBlankECBCode(t *testing.T) {
	m, err := fromRows(templateRows())
	require.NoError(t, err)

	// RREL7 has no ECB code, so it never entered the tables.
	assert.Equal(t, "RREL7", m.ToECB("RREL7"))
}

func TestFromRowsNewNameWinsTie(t *testing.T) {
	rows := [][]string{
		{"FIELD CODE", "FIELD NAME", "For info: existing ECB or EBA NPL template field code"},
		{"RREL10", "Account Status", "AR166"},
		{"RREL11", "Account Status (New)", "AR166"},
	}
	m, err := fromRows(rows)
	require.NoError(t, err)

	assert.Equal(t, "RREL11", m.ToESMA("AR166"))
}

func TestFromRowsFirstWinsWithoutNew(t *testing.T) {
	rows := [][]string{
		{"FIELD CODE", "FIELD NAME", "For info: existing ECB or EBA NPL template field code"},
		{"RREL10", "Account Status", "AR166"},
		{"RREL11", "Account Status Alt", "AR166"},
	}
	m, err := fromRows(rows)
	require.NoError(t, err)

	assert.Equal(t, "RREL10", m.ToESMA("AR166"))
}

func TestFromRowsESMAFirstWins(t *testing.T) {
	rows := [][]string{
		{"FIELD CODE", "FIELD NAME", "For info: existing ECB or EBA NPL template field code"},
		{"RREL10", "Account Status", "AR166"},
		{"RREL10", "Account Status", "AR167"},
	}
	m, err := fromRows(rows)
	require.NoError(t, err)

	assert.Equal(t, "AR166", m.ToECB("RREL10"))
}

func TestFromRowsMissingColumns(t *testing.T) {
	rows := [][]string{
		{"FIELD CODE", "SOMETHING ELSE"},
		{"RREL3", "x"},
	}
	_, err := fromRows(rows)
	assert.Error(t, err)
}

func TestFromRowsEmpty(t *testing.T) {
	_, err := fromRows(nil)
	assert.Error(t, err)
}

func TestRenameHeader(t *testing.T) {
	m, err := fromRows(templateRows())
	require.NoError(t, err)

	out := m.RenameHeader([]string{"AR3", "AR1", "UNMAPPED"})
	assert.Equal(t, []string{"RREL3", "RREL6", "UNMAPPED"}, out)
}

func TestLoadFromWorkbook(t *testing.T) {
	dir := t.TempDir()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Mapping")
	require.NoError(t, err)
	for _, row := range templateRows() {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	path := filepath.Join(dir, "template.xlsx")
	require.NoError(t, f.Save(path))

	m, err := Load(path, "Mapping")
	require.NoError(t, err)
	assert.Equal(t, "RREL3", m.ToESMA("AR3"))
}
