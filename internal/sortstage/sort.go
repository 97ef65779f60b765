// Package sortstage orders each country file by (loan id, collateral
// id, cut-off date) so every loan-collateral pair's time series is
// contiguous. Sorting is delegated to an embedded SQLite engine over an
// all-text staging table, keeping memory use independent of file size.
package sortstage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// Stage is the checkpoint stage identifier for sorted outputs.
const Stage = "sort"

// DefaultColumns is the sort key: loan identifier, collateral
// identifier, data cut-off date. All three are compared as opaque text.
var DefaultColumns = []string{"RREL3", "RREC3", "RREL6"}

// Options tunes the sort stage.
type Options struct {
	InputDir  string
	OutputDir string
	WorkDir   string // scratch directory for the staging databases
	Columns   []string
	BatchRows int
}

// Sorter runs the per-country sort.
type Sorter struct {
	opts Options
	reg  *checkpoint.Registry
}

// NewSorter wires the sort stage.
func NewSorter(reg *checkpoint.Registry, opts Options) *Sorter {
	if len(opts.Columns) == 0 {
		opts.Columns = DefaultColumns
	}
	return &Sorter{opts: opts, reg: reg}
}

// Run sorts every country file, smallest first, skipping files whose
// sorted output is already finalized.
func (s *Sorter) Run(ctx context.Context) (checkpoint.StageCounts, error) {
	log := zap.L().With(zap.String("component", "sortstage"))

	if err := s.reg.ReconcileDir(ctx, Stage, s.opts.OutputDir); err != nil {
		return checkpoint.StageCounts{}, err
	}
	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return checkpoint.StageCounts{}, eris.Wrap(err, "sortstage: create work dir")
	}

	files, err := discover(s.opts.InputDir)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}

	var counts checkpoint.StageCounts
	for _, f := range files {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}

		done, err := s.reg.IsDone(ctx, Stage, f.country)
		if err != nil {
			return counts, err
		}
		if done {
			counts.Skipped++
			continue
		}

		rows, err := s.sortFile(ctx, f)
		if err != nil {
			log.Error("sort failed", zap.String("country", f.country), zap.Error(err))
			checkpoint.CleanupTemp(filepath.Join(s.opts.OutputDir, f.country+".csv"))
			counts.Failed++
			continue
		}
		if err := s.reg.MarkDone(ctx, Stage, f.country, rows); err != nil {
			return counts, err
		}
		log.Info("country sorted", zap.String("country", f.country), zap.Int64("rows", rows))
		counts.Units++
		counts.Rows += rows
	}

	log.Info("sort stage complete",
		zap.Int("sorted", counts.Units),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
	return counts, nil
}

type inputFile struct {
	country string
	path    string
	size    int64
}

// discover lists country files, smallest first, so a resumed run
// finishes quick wins before the giant countries.
func discover(dir string) ([]inputFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "sortstage: read %s", dir)
	}

	var files []inputFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, eris.Wrapf(err, "sortstage: stat %s", name)
		}
		files = append(files, inputFile{
			country: strings.TrimSuffix(name, ".csv"),
			path:    filepath.Join(dir, name),
			size:    info.Size(),
		})
	}

	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && (files[j].size < files[j-1].size ||
			(files[j].size == files[j-1].size && files[j].country < files[j-1].country)); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
	return files, nil
}

func (s *Sorter) sortFile(ctx context.Context, f inputFile) (int64, error) {
	log := zap.L().With(zap.String("component", "sortstage"), zap.String("country", f.country))

	header, err := tabular.ReadHeader(f.path)
	if err != nil {
		return 0, err
	}

	// The staging table uses positional column names; the real header
	// is written back on export, so odd CSV column names never reach SQL.
	var orderIdx []int
	for _, want := range s.opts.Columns {
		found := false
		for i, h := range header {
			if h == want {
				orderIdx = append(orderIdx, i)
				found = true
				break
			}
		}
		if !found {
			log.Warn("sort column not present, skipping it", zap.String("column", want))
		}
	}
	if len(orderIdx) == 0 {
		return 0, eris.Errorf("sortstage: none of the sort columns %v present in %s", s.opts.Columns, f.path)
	}

	dbPath := filepath.Join(s.opts.WorkDir, f.country+".sort.db")
	removeDB(dbPath)
	defer removeDB(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, eris.Wrap(err, "sortstage: open staging db")
	}
	defer db.Close()

	for _, pragma := range []string{
		"PRAGMA journal_mode=OFF",
		"PRAGMA synchronous=OFF",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return 0, eris.Wrapf(err, "sortstage: exec %s", pragma)
		}
	}

	cols := make([]string, len(header))
	marks := make([]string, len(header))
	for i := range header {
		cols[i] = fmt.Sprintf("c%d TEXT", i)
		marks[i] = "?"
	}
	if _, err := db.ExecContext(ctx,
		"CREATE TABLE staging ("+strings.Join(cols, ", ")+")"); err != nil {
		return 0, eris.Wrap(err, "sortstage: create staging table")
	}

	if err := s.load(ctx, db, f.path, len(header), marks); err != nil {
		return 0, err
	}

	orderCols := make([]string, len(orderIdx))
	for i, idx := range orderIdx {
		orderCols[i] = fmt.Sprintf("c%d", idx)
	}

	return s.export(ctx, db, header, orderCols, filepath.Join(s.opts.OutputDir, f.country+".csv"))
}

// load streams the input into the staging table, one transaction per batch.
func (s *Sorter) load(ctx context.Context, db *sql.DB, path string, width int, marks []string) error {
	insertSQL := "INSERT INTO staging VALUES (" + strings.Join(marks, ", ") + ")"

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches, errs := tabular.Stream(streamCtx, path, s.opts.BatchRows)
	for b := range batches {
		err := func() error {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return eris.Wrap(err, "sortstage: begin load tx")
			}
			stmt, err := tx.PrepareContext(ctx, insertSQL)
			if err != nil {
				tx.Rollback()
				return eris.Wrap(err, "sortstage: prepare insert")
			}
			args := make([]any, width)
			for _, row := range b.Rows {
				for i := 0; i < width; i++ {
					args[i] = row[i]
				}
				if _, err := stmt.ExecContext(ctx, args...); err != nil {
					stmt.Close()
					tx.Rollback()
					return eris.Wrap(err, "sortstage: insert row")
				}
			}
			stmt.Close()
			return eris.Wrap(tx.Commit(), "sortstage: commit load tx")
		}()
		if err != nil {
			cancel()
			for range batches {
			}
			<-errs
			return err
		}
	}
	return <-errs
}

// export writes the ordered staging rows to the final path atomically.
func (s *Sorter) export(ctx context.Context, db *sql.DB, header, orderCols []string, outPath string) (int64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT * FROM staging ORDER BY "+strings.Join(orderCols, ", "))
	if err != nil {
		return 0, eris.Wrap(err, "sortstage: order query")
	}
	defer rows.Close()

	w, err := tabular.NewAtomicWriter(outPath)
	if err != nil {
		return 0, err
	}
	if err := w.WriteHeader(header); err != nil {
		w.Abort()
		return 0, err
	}

	values := make([]sql.NullString, len(header))
	scanArgs := make([]any, len(header))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	row := make([]string, len(header))
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			w.Abort()
			return 0, eris.Wrap(err, "sortstage: scan row")
		}
		for i, v := range values {
			row[i] = v.String
		}
		if err := w.WriteRows([][]string{row}); err != nil {
			w.Abort()
			return 0, err
		}
	}
	if err := rows.Err(); err != nil {
		w.Abort()
		return 0, eris.Wrap(err, "sortstage: iterate rows")
	}

	written := w.Rows()
	if err := w.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

func removeDB(dbPath string) {
	os.Remove(dbPath)
	os.Remove(dbPath + "-wal")
	os.Remove(dbPath + "-shm")
}
