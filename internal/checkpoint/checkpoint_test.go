package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-data/secmerge/internal/tabular"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestMarkDoneIsDone(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	done, err := reg.IsDone(ctx, "pools", "POOL1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, reg.MarkDone(ctx, "pools", "POOL1", 42))

	done, err = reg.IsDone(ctx, "pools", "POOL1")
	require.NoError(t, err)
	assert.True(t, done)

	// Same unit name under a different stage is independent.
	done, err = reg.IsDone(ctx, "countries", "POOL1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkDoneIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	require.NoError(t, reg.MarkDone(ctx, "pools", "POOL1", 10))
	require.NoError(t, reg.MarkDone(ctx, "pools", "POOL1", 20))

	status, err := reg.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].Done)
	assert.Equal(t, int64(20), status[0].Rows)
}

func TestReconcileDirAdoptsOnDiskOutputs(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	dir := t.TempDir()

	// Final output exists but the registry never heard of it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "POOL1.csv"), []byte("A\n1\n"), 0o644))

	require.NoError(t, reg.ReconcileDir(ctx, "pools", dir))

	done, err := reg.IsDone(ctx, "pools", "POOL1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestReconcileDirForgetsMissingOutputs(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	dir := t.TempDir()

	// Registry claims done but the final file is gone.
	require.NoError(t, reg.MarkDone(ctx, "pools", "POOL1", 5))

	require.NoError(t, reg.ReconcileDir(ctx, "pools", dir))

	done, err := reg.IsDone(ctx, "pools", "POOL1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestReconcileDirRemovesTempArtifacts(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	dir := t.TempDir()

	temp := filepath.Join(dir, "POOL1.csv"+tabular.TempSuffix)
	require.NoError(t, os.WriteFile(temp, []byte("partial"), 0o644))

	require.NoError(t, reg.ReconcileDir(ctx, "pools", dir))

	_, err := os.Stat(temp)
	assert.True(t, os.IsNotExist(err))

	// The interrupted unit is not considered done.
	done, err := reg.IsDone(ctx, "pools", "POOL1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestReconcileDirCreatesMissingDir(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)
	dir := filepath.Join(t.TempDir(), "not", "yet", "there")

	require.NoError(t, reg.ReconcileDir(ctx, "pools", dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	runID, err := reg.StartRun(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	counts := StageCounts{Units: 3, Skipped: 1, Rows: 100, DedupDropped: 7}
	require.NoError(t, reg.CompleteStage(ctx, runID, "pools", counts))
	// Re-running a stage overwrites its counters.
	counts.Units = 4
	require.NoError(t, reg.CompleteStage(ctx, runID, "pools", counts))

	require.NoError(t, reg.CompleteRun(ctx, runID))
}

func TestStatusAggregatesByStage(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	require.NoError(t, reg.MarkDone(ctx, "pools", "A", 10))
	require.NoError(t, reg.MarkDone(ctx, "pools", "B", 15))
	require.NoError(t, reg.MarkDone(ctx, "countries", "IT", 100))

	status, err := reg.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)

	// Sorted by stage name.
	assert.Equal(t, "countries", status[0].Stage)
	assert.Equal(t, 1, status[0].Done)
	assert.Equal(t, int64(100), status[0].Rows)
	assert.Equal(t, "pools", status[1].Stage)
	assert.Equal(t, 2, status[1].Done)
	assert.Equal(t, int64(25), status[1].Rows)
}

func TestCleanupTemp(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(final+tabular.TempSuffix, []byte("x"), 0o644))

	CleanupTemp(final)

	_, err := os.Stat(final + tabular.TempSuffix)
	assert.True(t, os.IsNotExist(err))
}
