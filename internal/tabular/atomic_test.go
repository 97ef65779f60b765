package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriterCommit(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.csv")

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)

	require.NoError(t, w.WriteHeader([]string{"A", "B"}))
	require.NoError(t, w.WriteRows([][]string{{"1", "2"}, {"3", "4"}}))
	assert.Equal(t, int64(2), w.Rows())

	// Final file must not exist before Commit.
	_, err = os.Stat(final)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(final + TempSuffix)
	assert.NoError(t, err)

	require.NoError(t, w.Commit())

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "A,B\n1,2\n3,4\n", string(data))

	_, err = os.Stat(final + TempSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestAtomicWriterAbort(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.csv")

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"A"}))
	require.NoError(t, w.WriteRows([][]string{{"1"}}))

	w.Abort()

	_, err = os.Stat(final)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(final + TempSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestAtomicWriterHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.csv")

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"A"}))
	require.NoError(t, w.WriteHeader([]string{"B"})) // no-op
	require.NoError(t, w.Commit())

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(data))
}

func TestAtomicWriterTruncatesStaleTemp(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(final+TempSuffix, []byte("stale leftover"), 0o644))

	w, err := NewAtomicWriter(final)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"A"}))
	require.NoError(t, w.Commit())

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "A\n", string(data))
}
