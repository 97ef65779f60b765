package main

import (
	"context"
	"path/filepath"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/country"
	"github.com/meridian-data/secmerge/internal/mapping"
	"github.com/meridian-data/secmerge/internal/match"
	"github.com/meridian-data/secmerge/internal/pool"
	"github.com/meridian-data/secmerge/internal/sortstage"
)

// Output tree layout: the pool stage writes its matched/ecb_only/esma_only
// folders directly under the output root; later stages get one folder each.
// The match stage feeds the configured ESMA input directory instead, since
// its merged files are the ESMA side of the pool merge.
func poolsDir() string     { return cfg.Paths.OutputDir }
func countriesDir() string { return filepath.Join(cfg.Paths.OutputDir, "by_country") }
func sortedDir() string    { return filepath.Join(cfg.Paths.OutputDir, "sorted") }

func openRegistry() (*checkpoint.Registry, error) {
	return checkpoint.Open(cfg.Paths.Checkpoint)
}

func runMatch(ctx context.Context, reg *checkpoint.Registry) (checkpoint.StageCounts, error) {
	return match.Run(ctx, reg, cfg.Paths.RawDir, cfg.Paths.ESMADir)
}

func runPools(ctx context.Context, reg *checkpoint.Registry) (checkpoint.StageCounts, error) {
	m, err := mapping.Load(cfg.Paths.Template, cfg.Paths.TemplateSheet)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}
	corr, err := pool.LoadCorrespondence(cfg.Paths.PoolMap)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}
	idx, err := pool.BuildIndex(cfg.Paths.ECBDir, cfg.Paths.ESMADir)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}

	engine := pool.NewEngine(m, idx, corr.OverlapSet(), reg, pool.Options{
		OutputDir:      poolsDir(),
		BatchRows:      cfg.Pools.BatchRows,
		LargePoolBytes: cfg.Pools.LargePoolBytes,
		Workers:        cfg.Pools.Workers,
	})
	return engine.Run(ctx, pool.Classify(idx, corr))
}

func runCountries(ctx context.Context, reg *checkpoint.Registry) (checkpoint.StageCounts, error) {
	merger := country.NewMerger(reg, country.Options{
		InputDir:   poolsDir(),
		OutputDir:  countriesDir(),
		SampleRows: cfg.Countries.SampleRows,
		BatchRows:  cfg.Countries.BatchRows,
		Workers:    cfg.Countries.Workers,
	})
	return merger.Run(ctx)
}

func runSort(ctx context.Context, reg *checkpoint.Registry) (checkpoint.StageCounts, error) {
	sorter := sortstage.NewSorter(reg, sortstage.Options{
		InputDir:  countriesDir(),
		OutputDir: sortedDir(),
		WorkDir:   cfg.Paths.WorkDir,
		Columns:   cfg.Sort.Columns,
		BatchRows: cfg.Sort.BatchRows,
	})
	return sorter.Run(ctx)
}
