package pool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-data/secmerge/internal/mapping"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// testMapping maps AR3 -> RREL3; AR1 stays unmapped, matching the real
// template where the ECB cut-off date has no ESMA counterpart.
func testMapping(t *testing.T) *mapping.ColumnMapping {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Mapping")
	require.NoError(t, err)
	rows := [][]string{
		{"FIELD CODE", "FIELD NAME", "For info: existing ECB or EBA NPL template field code"},
		{"RREL3", "Underlying Exposure Identifier", "AR3"},
		{"RREL90", "Original Valuation Amount", "AR135"},
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "template.xlsx")
	require.NoError(t, f.Save(path))

	m, err := mapping.Load(path, "")
	require.NoError(t, err)
	return m
}

func TestPrepareESMAAppendsProvenance(t *testing.T) {
	b := &tabular.Batch{
		Header: []string{"RREL3", "RREL6"},
		Rows:   [][]string{{"LOAN1", "2021-03-31"}},
	}

	p := prepareESMA(b, "ECB1", "ESMA1")

	assert.Equal(t, []string{"RREL3", "RREL6", "source", "ecb_pool_id", "esma_pool_id"}, p.batch.Header)
	assert.Equal(t, []string{"LOAN1", "2021-03-31", "ESMA", "ECB1", "ESMA1"}, p.batch.Rows[0])
	assert.Equal(t, rowKey{loan: "LOAN1", ym: "2021-03"}, p.keys[0])
}

func TestPrepareECBRenamesAndFallsBackToAR1(t *testing.T) {
	m := testMapping(t)
	b := &tabular.Batch{
		Header: []string{"AR3", "AR1"},
		Rows:   [][]string{{"LOAN1", "2021-03-15"}},
	}

	p := prepareECB(b, m, "ECB1", "ESMA1")

	// AR3 renamed to RREL3; AR1 stays. No RREL6 in the header, so the
	// dedup date comes from AR1.
	assert.Equal(t, []string{"RREL3", "AR1", "source", "ecb_pool_id", "esma_pool_id"}, p.batch.Header)
	assert.Equal(t, "ECB", p.batch.Rows[0][2])
	assert.Equal(t, rowKey{loan: "LOAN1", ym: "2021-03"}, p.keys[0])
}

func TestPrepareMissingKeyColumns(t *testing.T) {
	b := &tabular.Batch{
		Header: []string{"OTHER"},
		Rows:   [][]string{{"x"}},
	}

	p := prepareESMA(b, "", "ESMA1")

	assert.Equal(t, rowKey{}, p.keys[0])
}

func TestYearMonth(t *testing.T) {
	assert.Equal(t, "2021-03", yearMonth("2021-03-31"))
	assert.Equal(t, "2021-03", yearMonth("2021-03"))
	assert.Equal(t, "", yearMonth(""))
}
