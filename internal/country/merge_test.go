package country

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/pool"
	"github.com/meridian-data/secmerge/internal/tabular"
)

func writePool(t *testing.T, inputDir, folder, name, content string) {
	t.Helper()
	dir := filepath.Join(inputDir, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestMerger(t *testing.T, inputDir, outputDir string) (*Merger, *checkpoint.Registry) {
	t.Helper()
	reg, err := checkpoint.Open(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	return NewMerger(reg, Options{
		InputDir:   inputDir,
		OutputDir:  outputDir,
		SampleRows: 100,
		BatchRows:  2,
		Workers:    2,
	}), reg
}

func TestMergerGroupsFilesByCountry(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	writePool(t, inputDir, pool.StageMatched, "POOL_A.csv",
		"RREL3,RREL81\nL1,IT\nL2,IT\n")
	writePool(t, inputDir, pool.StageESMAOnly, "POOL_B.csv",
		"RREL3,RREL81,RREL90\nL3,IT,500\n")
	writePool(t, inputDir, pool.StageECBOnly, "POOL_C.csv",
		"RREL3,RREL81\nL4,DE\n")

	m, _ := newTestMerger(t, inputDir, outputDir)
	counts, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counts.Units)
	assert.Equal(t, int64(4), counts.Rows)

	it, err := tabular.ReadAll(filepath.Join(outputDir, "IT.csv"))
	require.NoError(t, err)

	// Sorted union of both IT files' headers; missing values are blank.
	assert.Equal(t, []string{"RREL3", "RREL81", "RREL90"}, it.Header)
	require.Len(t, it.Rows, 3)
	assert.Equal(t, []string{"L1", "IT", ""}, it.Rows[0])
	assert.Equal(t, []string{"L3", "IT", "500"}, it.Rows[2])

	de, err := tabular.ReadAll(filepath.Join(outputDir, "DE.csv"))
	require.NoError(t, err)
	assert.Len(t, de.Rows, 1)
}

func TestMergerDeterministicFileOrder(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	// Same country, two folders: matched files come before esma_only,
	// and filenames are sorted within a folder.
	writePool(t, inputDir, pool.StageESMAOnly, "POOL_Z.csv", "RREL3,RREL81\nL9,FR\n")
	writePool(t, inputDir, pool.StageMatched, "POOL_B.csv", "RREL3,RREL81\nL2,FR\n")
	writePool(t, inputDir, pool.StageMatched, "POOL_A.csv", "RREL3,RREL81\nL1,FR\n")

	m, _ := newTestMerger(t, inputDir, outputDir)
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	fr, err := tabular.ReadAll(filepath.Join(outputDir, "FR.csv"))
	require.NoError(t, err)
	require.Len(t, fr.Rows, 3)
	assert.Equal(t, "L1", fr.Rows[0][0])
	assert.Equal(t, "L2", fr.Rows[1][0])
	assert.Equal(t, "L9", fr.Rows[2][0])
}

func TestMergerResumeSkipsDoneCountries(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	writePool(t, inputDir, pool.StageMatched, "POOL_A.csv", "RREL3,RREL81\nL1,IT\n")

	m, _ := newTestMerger(t, inputDir, outputDir)
	first, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Units)

	second, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Units)
	assert.Equal(t, 1, second.Skipped)
}

func TestMergerUndetectableLandsInUnknown(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	writePool(t, inputDir, pool.StageMatched, "POOL_A.csv", "SOMETHING\nvalue\n")

	m, _ := newTestMerger(t, inputDir, outputDir)
	counts, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, counts.Units)
	_, err = os.Stat(filepath.Join(outputDir, Unknown+".csv"))
	assert.NoError(t, err)
}

func TestMergerNoInputFolders(t *testing.T) {
	m, _ := newTestMerger(t, t.TempDir(), t.TempDir())

	counts, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Units)
}

func TestUnifiedSchemaSortedUnion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("B,A\n1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("C,B\n3,4\n"), 0o644))

	schema, err := UnifiedSchema([]File{
		{Path: filepath.Join(dir, "a.csv")},
		{Path: filepath.Join(dir, "b.csv")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, schema)
}

func TestBuildIndexSamplesAndClassifies(t *testing.T) {
	inputDir := t.TempDir()
	writePool(t, inputDir, pool.StageMatched, "POOL_A.csv", "RREL81\nES\n")
	writePool(t, inputDir, pool.StageECBOnly, "RMBMPT0001.csv", "OTHER\nx\n")

	idx, err := BuildIndex(inputDir, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"ES", "PT"}, idx.Countries())
	require.Len(t, idx.ByCountry["PT"], 1)
	assert.Equal(t, "RMBMPT0001", idx.ByCountry["PT"][0].Pool)
}
