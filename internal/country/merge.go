package country

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// Stage is the checkpoint stage identifier for country merges.
const Stage = "country"

// Options tunes the country merge stage.
type Options struct {
	InputDir   string // pool-stage output root
	OutputDir  string // per-country files land here
	SampleRows int    // rows sampled per file for country detection
	BatchRows  int    // rows per streamed batch
	Workers    int    // concurrent countries
}

// Merger streams every contributing pool file of a country into one
// unified-schema output. Peak memory is bounded by one batch.
type Merger struct {
	opts     Options
	reg      *checkpoint.Registry
	progress *rate.Limiter
}

// NewMerger wires the country merge stage.
func NewMerger(reg *checkpoint.Registry, opts Options) *Merger {
	return &Merger{
		opts:     opts,
		reg:      reg,
		progress: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// mergeCountry writes one country's unified file. Returns rows written
// and whether the unit was skipped. A country with no contributing
// files produces no output and no checkpoint entry.
func (m *Merger) mergeCountry(ctx context.Context, code string, files []File) (int64, bool, error) {
	log := zap.L().With(zap.String("component", "country.merger"), zap.String("country", code))

	if len(files) == 0 {
		return 0, true, nil
	}

	done, err := m.reg.IsDone(ctx, Stage, code)
	if err != nil {
		return 0, false, err
	}
	if done {
		log.Debug("already merged, skipping")
		return 0, true, nil
	}

	// Phase 1: header-only scan for the unified schema.
	schema, err := UnifiedSchema(files)
	if err != nil {
		return 0, false, err
	}
	log.Info("unified schema built", zap.Int("columns", len(schema)), zap.Int("files", len(files)))

	// Phase 2: stream every file batch-by-batch into the output,
	// aligning each batch to the unified column order.
	outPath := filepath.Join(m.opts.OutputDir, code+".csv")
	w, err := tabular.NewAtomicWriter(outPath)
	if err != nil {
		return 0, false, err
	}
	if err := w.WriteHeader(schema); err != nil {
		w.Abort()
		return 0, false, err
	}

	for _, f := range files {
		if err := m.appendFile(ctx, w, f, schema, log); err != nil {
			w.Abort()
			return 0, false, eris.Wrapf(err, "country: merge %s into %s", f.Pool, code)
		}
	}

	rows := w.Rows()
	if err := w.Commit(); err != nil {
		return 0, false, err
	}
	if err := m.reg.MarkDone(ctx, Stage, code, rows); err != nil {
		return 0, false, err
	}

	log.Info("country complete", zap.Int64("rows", rows))
	return rows, false, nil
}

func (m *Merger) appendFile(ctx context.Context, w *tabular.AtomicWriter, f File, schema []string, log *zap.Logger) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches, errs := tabular.Stream(streamCtx, f.Path, m.opts.BatchRows)
	for b := range batches {
		if err := w.WriteRows(align(b, schema)); err != nil {
			cancel()
			for range batches {
			}
			<-errs
			return err
		}
		if m.progress.Allow() {
			log.Info("merging", zap.String("pool", f.Pool), zap.Int64("rows_written", w.Rows()))
		}
	}
	return <-errs
}

// align arranges a batch's rows into the unified column order, filling
// columns the batch lacks with the empty null marker. Every emitted row
// has exactly len(schema) fields.
func align(b *tabular.Batch, schema []string) [][]string {
	src := make([]int, len(schema))
	for i, name := range schema {
		src[i] = b.Col(name)
	}

	out := make([][]string, len(b.Rows))
	for r, row := range b.Rows {
		aligned := make([]string, len(schema))
		for i, col := range src {
			if col >= 0 && col < len(row) {
				aligned[i] = row[col]
			}
		}
		out[r] = aligned
	}
	return out
}
