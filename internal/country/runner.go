package country

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-data/secmerge/internal/checkpoint"
)

// Run builds the country index, reconciles the registry against the
// output directory, and merges every country on a bounded worker pool.
// The caller must ensure the pool stage has fully finalized its outputs
// before invoking this stage.
func (m *Merger) Run(ctx context.Context) (checkpoint.StageCounts, error) {
	log := zap.L().With(zap.String("component", "country.runner"))

	if err := m.reg.ReconcileDir(ctx, Stage, m.opts.OutputDir); err != nil {
		return checkpoint.StageCounts{}, err
	}

	idx, err := BuildIndex(m.opts.InputDir, m.opts.SampleRows)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}

	var (
		mu     sync.Mutex
		counts checkpoint.StageCounts
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.opts.Workers, 1))

	for _, code := range idx.Countries() {
		code := code
		files := idx.ByCountry[code]
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			rows, skipped, err := m.mergeCountry(gctx, code, files)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Error("country failed", zap.String("country", code), zap.Error(err))
				checkpoint.CleanupTemp(filepath.Join(m.opts.OutputDir, code+".csv"))
				counts.Failed++
			case skipped:
				counts.Skipped++
			default:
				counts.Units++
				counts.Rows += rows
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return counts, err
	}

	log.Info("country stage complete",
		zap.Int("merged", counts.Units),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
		zap.Int64("rows", counts.Rows),
	)
	return counts, nil
}
