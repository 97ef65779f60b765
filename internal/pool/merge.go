package pool

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/mapping"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// Options tunes the pool merge engine.
type Options struct {
	OutputDir      string
	BatchRows      int   // rows per streamed batch in chunked mode
	LargePoolBytes int64 // compressed-size threshold for chunked mode
	Workers        int   // concurrent pool units
}

// Engine merges one pool at a time: loads both feeds' files, harmonises
// ECB columns to ESMA codes, tags provenance, optionally deduplicates,
// and writes one atomically finalized file per pool.
type Engine struct {
	opts     Options
	mapping  *mapping.ColumnMapping
	index    *Index
	overlap  map[string]bool
	reg      *checkpoint.Registry
	progress *rate.Limiter
}

// NewEngine wires the merge engine. overlap is the dedup allow-list
// keyed by ECB pool id.
func NewEngine(m *mapping.ColumnMapping, idx *Index, overlap map[string]bool, reg *checkpoint.Registry, opts Options) *Engine {
	return &Engine{
		opts:     opts,
		mapping:  m,
		index:    idx,
		overlap:  overlap,
		reg:      reg,
		progress: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// unit is one pool to process; exactly one of ecbID/esmaID may be empty.
type unit struct {
	stage  string
	ecbID  string
	esmaID string
}

// id returns the unit identifier used for the output filename and the
// checkpoint entry.
func (u unit) id() string {
	if u.ecbID != "" {
		return u.ecbID
	}
	return u.esmaID
}

func safeFilename(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(id)
}

// processUnit merges one pool. Returns rows written, ECB rows dropped
// by dedup, and whether the unit was skipped (already done, or nothing
// to write).
func (e *Engine) processUnit(ctx context.Context, u unit) (written, dropped int64, skipped bool, err error) {
	log := zap.L().With(
		zap.String("component", "pool.engine"),
		zap.String("stage", u.stage),
		zap.String("pool", u.id()),
	)

	done, err := e.reg.IsDone(ctx, u.stage, u.id())
	if err != nil {
		return 0, 0, false, err
	}
	if done {
		return 0, 0, true, nil
	}

	var ecbFiles, esmaFiles []string
	if u.ecbID != "" {
		ecbFiles = e.index.ECB[u.ecbID]
	}
	if u.esmaID != "" {
		esmaFiles = e.index.ESMA[u.esmaID]
	}

	if u.stage == StageMatched && (len(ecbFiles) == 0 || len(esmaFiles) == 0) {
		// Correspondence table promises both sides; one is absent on
		// disk. Merge what exists and surface the ambiguity loudly.
		log.Warn("matched pool missing one side on disk",
			zap.Int("ecb_files", len(ecbFiles)),
			zap.Int("esma_files", len(esmaFiles)),
		)
	}
	if len(ecbFiles) == 0 && len(esmaFiles) == 0 {
		log.Warn("no input files, skipping")
		return 0, 0, true, nil
	}

	outPath := filepath.Join(e.opts.OutputDir, u.stage, safeFilename(u.id())+".csv")

	large := e.index.CompressedSize(u.ecbID, e.index.ECB) > e.opts.LargePoolBytes ||
		e.index.CompressedSize(u.esmaID, e.index.ESMA) > e.opts.LargePoolBytes

	if large {
		log.Info("large pool, processing in chunked mode")
		written, dropped, err = e.mergeChunked(ctx, u, ecbFiles, esmaFiles, outPath)
	} else {
		written, dropped, err = e.mergeDirect(ctx, u, ecbFiles, esmaFiles, outPath)
	}
	if err != nil {
		checkpoint.CleanupTemp(outPath)
		return 0, 0, false, err
	}
	if written == 0 {
		log.Warn("pool yielded no rows, no output written")
		return 0, dropped, true, nil
	}

	if err := e.reg.MarkDone(ctx, u.stage, u.id(), written); err != nil {
		return 0, 0, false, err
	}
	log.Info("pool complete", zap.Int64("rows", written), zap.Int64("dedup_dropped", dropped))
	return written, dropped, false, nil
}

// mergeDirect materializes the whole pool, dedups if allow-listed, and
// writes ECB rows before ESMA rows in each side's original order.
func (e *Engine) mergeDirect(ctx context.Context, u unit, ecbFiles, esmaFiles []string, outPath string) (int64, int64, error) {
	var ecbPrepared, esmaPrepared []*prepared

	for _, path := range ecbFiles {
		b, err := tabular.ReadAll(path)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "pool: read ECB input for %s", u.id())
		}
		ecbPrepared = append(ecbPrepared, prepareECB(b, e.mapping, u.ecbID, u.esmaID))
	}
	for _, path := range esmaFiles {
		b, err := tabular.ReadAll(path)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "pool: read ESMA input for %s", u.id())
		}
		esmaPrepared = append(esmaPrepared, prepareESMA(b, u.ecbID, u.esmaID))
	}

	var ded *Deduper
	if e.overlap[u.ecbID] {
		ded = NewDeduper()
		for _, p := range esmaPrepared {
			ded.ObserveESMA(p)
		}
	}

	acc := newSchemaAccum()
	var out []*tabular.Batch
	for _, p := range ecbPrepared {
		b := p.batch
		if ded != nil {
			b = ded.FilterECB(p)
		}
		acc.observe(b)
		out = append(out, b)
	}
	for _, p := range esmaPrepared {
		acc.observe(p.batch)
		out = append(out, p.batch)
	}

	schema := acc.sorted()
	if len(schema) == 0 {
		return 0, droppedOf(ded), nil
	}

	w, err := tabular.NewAtomicWriter(outPath)
	if err != nil {
		return 0, 0, err
	}
	if err := w.WriteHeader(schema); err != nil {
		w.Abort()
		return 0, 0, err
	}
	for _, b := range out {
		if err := w.WriteRows(project(b, schema)); err != nil {
			w.Abort()
			return 0, 0, err
		}
	}
	if w.Rows() == 0 {
		w.Abort()
		return 0, droppedOf(ded), nil
	}
	rows := w.Rows()
	if err := w.Commit(); err != nil {
		return 0, 0, err
	}
	return rows, droppedOf(ded), nil
}

// mergeChunked streams the pool in fixed-size batches: a schema pass
// over every file (which also collects ESMA dedup keys when the pool is
// allow-listed), then a write pass appending ECB batches before ESMA
// batches. Peak memory is one batch plus the schema and key sets.
func (e *Engine) mergeChunked(ctx context.Context, u unit, ecbFiles, esmaFiles []string, outPath string) (int64, int64, error) {
	log := zap.L().With(zap.String("component", "pool.engine"), zap.String("pool", u.id()))

	acc := newSchemaAccum()
	var ded *Deduper
	if e.overlap[u.ecbID] {
		ded = NewDeduper()
	}

	for _, path := range esmaFiles {
		err := e.eachBatch(ctx, path, func(b *tabular.Batch) error {
			p := prepareESMA(b, u.ecbID, u.esmaID)
			acc.observe(p.batch)
			if ded != nil {
				ded.ObserveESMA(p)
			}
			return nil
		})
		if err != nil {
			return 0, 0, eris.Wrapf(err, "pool: scan ESMA input for %s", u.id())
		}
	}
	for _, path := range ecbFiles {
		err := e.eachBatch(ctx, path, func(b *tabular.Batch) error {
			p := prepareECB(b, e.mapping, u.ecbID, u.esmaID)
			if ded != nil {
				// Observe post-filter rows so a column populated only in
				// dropped ECB rows is excluded, exactly as in direct mode.
				acc.observe(ded.filterECB(p, false))
				return nil
			}
			acc.observe(p.batch)
			return nil
		})
		if err != nil {
			return 0, 0, eris.Wrapf(err, "pool: scan ECB input for %s", u.id())
		}
	}

	schema := acc.sorted()
	if len(schema) == 0 {
		return 0, droppedOf(ded), nil
	}
	log.Info("schema scan complete", zap.Int("columns", len(schema)))

	w, err := tabular.NewAtomicWriter(outPath)
	if err != nil {
		return 0, 0, err
	}
	if err := w.WriteHeader(schema); err != nil {
		w.Abort()
		return 0, 0, err
	}

	writeFile := func(path string, prep func(*tabular.Batch) *tabular.Batch) error {
		return e.eachBatch(ctx, path, func(b *tabular.Batch) error {
			if err := w.WriteRows(project(prep(b), schema)); err != nil {
				return err
			}
			if e.progress.Allow() {
				log.Info("merging", zap.Int64("rows_written", w.Rows()))
			}
			return nil
		})
	}

	for _, path := range ecbFiles {
		err := writeFile(path, func(b *tabular.Batch) *tabular.Batch {
			p := prepareECB(b, e.mapping, u.ecbID, u.esmaID)
			if ded != nil {
				return ded.FilterECB(p)
			}
			return p.batch
		})
		if err != nil {
			w.Abort()
			return 0, 0, eris.Wrapf(err, "pool: write ECB rows for %s", u.id())
		}
	}
	for _, path := range esmaFiles {
		err := writeFile(path, func(b *tabular.Batch) *tabular.Batch {
			return prepareESMA(b, u.ecbID, u.esmaID).batch
		})
		if err != nil {
			w.Abort()
			return 0, 0, eris.Wrapf(err, "pool: write ESMA rows for %s", u.id())
		}
	}

	if w.Rows() == 0 {
		w.Abort()
		return 0, droppedOf(ded), nil
	}
	rows := w.Rows()
	if err := w.Commit(); err != nil {
		return 0, 0, err
	}
	return rows, droppedOf(ded), nil
}

// eachBatch streams a file and applies fn to every batch, stopping the
// producer cleanly on error.
func (e *Engine) eachBatch(ctx context.Context, path string, fn func(*tabular.Batch) error) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches, errs := tabular.Stream(streamCtx, path, e.opts.BatchRows)
	for b := range batches {
		if err := fn(b); err != nil {
			cancel()
			for range batches {
			}
			<-errs
			return err
		}
	}
	return <-errs
}

func droppedOf(d *Deduper) int64 {
	if d == nil {
		return 0
	}
	return d.Dropped()
}
