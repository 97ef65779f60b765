package pool

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-data/secmerge/internal/checkpoint"
)

// Run reconciles the checkpoint registry against the output tree, then
// processes every pool in the classification. Units are independent and
// run on a bounded worker pool; a failing unit is logged and left
// undone without aborting the stage.
func (e *Engine) Run(ctx context.Context, cls *Classification) (checkpoint.StageCounts, error) {
	log := zap.L().With(zap.String("component", "pool.runner"))

	for _, stage := range []string{StageMatched, StageECBOnly, StageESMAOnly} {
		dir := filepath.Join(e.opts.OutputDir, stage)
		if err := e.reg.ReconcileDir(ctx, stage, dir); err != nil {
			return checkpoint.StageCounts{}, err
		}
	}

	var units []unit
	for _, pair := range cls.Matched {
		units = append(units, unit{stage: StageMatched, ecbID: pair.ECB, esmaID: pair.ESMA})
	}
	for _, id := range cls.ECBOnly {
		units = append(units, unit{stage: StageECBOnly, ecbID: id})
	}
	for _, id := range cls.ESMAOnly {
		units = append(units, unit{stage: StageESMAOnly, esmaID: id})
	}

	log.Info("pool stage starting",
		zap.Int("matched", len(cls.Matched)),
		zap.Int("ecb_only", len(cls.ECBOnly)),
		zap.Int("esma_only", len(cls.ESMAOnly)),
	)

	var (
		mu     sync.Mutex
		counts checkpoint.StageCounts
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.opts.Workers, 1))

	for _, u := range units {
		u := u
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			written, dropped, skipped, err := e.processUnit(gctx, u)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				// Unit-level isolation: the pool stays undone for a
				// later retry, the rest of the stage continues.
				log.Error("pool failed",
					zap.String("stage", u.stage),
					zap.String("pool", u.id()),
					zap.Error(err),
				)
				counts.Failed++
			case skipped:
				counts.Skipped++
			default:
				counts.Units++
				counts.Rows += written
			}
			counts.DedupDropped += dropped
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return counts, err
	}

	log.Info("pool stage complete",
		zap.Int("merged", counts.Units),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
		zap.Int64("rows", counts.Rows),
		zap.Int64("dedup_dropped", counts.DedupDropped),
	)
	return counts, nil
}
