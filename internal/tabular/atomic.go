package tabular

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"
)

// TempSuffix marks in-progress output files. A file carrying this suffix
// is never a valid final artifact and may be deleted on restart.
const TempSuffix = ".tmp"

// AtomicWriter appends CSV rows to a temporary file and exposes the
// final path only after Commit renames it. A unit's output is therefore
// either complete or absent, never partial.
type AtomicWriter struct {
	finalPath   string
	tempPath    string
	f           *os.File
	w           *csv.Writer
	wroteHeader bool
	rows        int64
}

// NewAtomicWriter creates the temporary file next to finalPath,
// truncating any stale leftover from an interrupted run.
func NewAtomicWriter(finalPath string) (*AtomicWriter, error) {
	tempPath := finalPath + TempSuffix
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: create temp %s", tempPath)
	}
	return &AtomicWriter{
		finalPath: finalPath,
		tempPath:  tempPath,
		f:         f,
		w:         csv.NewWriter(f),
	}, nil
}

// WriteHeader writes the column-name row. Only the first call writes;
// later calls are no-ops so per-batch writers can pass the header
// unconditionally.
func (a *AtomicWriter) WriteHeader(header []string) error {
	if a.wroteHeader {
		return nil
	}
	if err := a.w.Write(header); err != nil {
		return eris.Wrapf(err, "tabular: write header to %s", a.tempPath)
	}
	a.wroteHeader = true
	return nil
}

// WriteRows appends data rows.
func (a *AtomicWriter) WriteRows(rows [][]string) error {
	for _, row := range rows {
		if err := a.w.Write(row); err != nil {
			return eris.Wrapf(err, "tabular: write row to %s", a.tempPath)
		}
	}
	a.rows += int64(len(rows))
	return nil
}

// Rows returns the number of data rows written so far.
func (a *AtomicWriter) Rows() int64 { return a.rows }

// Commit flushes, closes, and renames the temp file to the final path.
// The rename is the single atomic step that publishes the output.
func (a *AtomicWriter) Commit() error {
	a.w.Flush()
	if err := a.w.Error(); err != nil {
		a.f.Close()
		return eris.Wrapf(err, "tabular: flush %s", a.tempPath)
	}
	if err := a.f.Close(); err != nil {
		return eris.Wrapf(err, "tabular: close %s", a.tempPath)
	}
	if err := os.Rename(a.tempPath, a.finalPath); err != nil {
		return eris.Wrapf(err, "tabular: finalize %s", a.finalPath)
	}
	return nil
}

// Abort closes and removes the temp file, leaving the unit undone.
func (a *AtomicWriter) Abort() {
	a.f.Close()
	os.Remove(a.tempPath)
}
