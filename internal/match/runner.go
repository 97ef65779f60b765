package match

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-data/secmerge/internal/checkpoint"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// Stage is the checkpoint stage identifier for pairwise merges.
const Stage = "match"

// Pair is one UE/Collateral file pair sharing (asset type, identifier, date).
type Pair struct {
	UE         *FileInfo
	Collateral *FileInfo
}

// FindPairs discovers UE/Collateral pairs in a disclosure folder.
func FindPairs(dir string) ([]Pair, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "match: read %s", dir)
	}

	type pairKey struct{ asset, id, date string }
	collByKey := make(map[pairKey]*FileInfo)
	var ues []*FileInfo

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		info := ParseFilename(name)
		if info == nil {
			continue
		}
		key := pairKey{info.AssetType, info.Identifier, info.Date}
		switch info.Category {
		case "UE":
			ues = append(ues, info)
		case "Collateral":
			collByKey[key] = info
		}
	}

	var pairs []Pair
	for _, ue := range ues {
		if coll, ok := collByKey[pairKey{ue.AssetType, ue.Identifier, ue.Date}]; ok {
			pairs = append(pairs, Pair{UE: ue, Collateral: coll})
		}
	}
	return pairs, nil
}

// Run merges every discovered pair into outputDir, skipping pairs whose
// merged output already exists. A failing pair is logged and the run
// continues.
func Run(ctx context.Context, reg *checkpoint.Registry, inputDir, outputDir string) (checkpoint.StageCounts, error) {
	log := zap.L().With(zap.String("component", "match.runner"))

	if err := reg.ReconcileDir(ctx, Stage, outputDir); err != nil {
		return checkpoint.StageCounts{}, err
	}

	pairs, err := FindPairs(inputDir)
	if err != nil {
		return checkpoint.StageCounts{}, err
	}
	log.Info("discovered pairs", zap.Int("count", len(pairs)))

	var counts checkpoint.StageCounts
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return counts, ctx.Err()
		}

		mergedName := MergedFilename(pair.UE.Filename)
		unit := strings.TrimSuffix(mergedName, ".csv")

		done, err := reg.IsDone(ctx, Stage, unit)
		if err != nil {
			return counts, err
		}
		if done {
			counts.Skipped++
			continue
		}

		outPath := filepath.Join(outputDir, mergedName)
		rows, err := mergePair(ctx, pair, inputDir, outPath)
		if err != nil {
			log.Error("pair failed", zap.String("ue", pair.UE.Filename), zap.Error(err))
			checkpoint.CleanupTemp(outPath)
			counts.Failed++
			continue
		}
		if err := reg.MarkDone(ctx, Stage, unit, rows); err != nil {
			return counts, err
		}
		counts.Units++
		counts.Rows += rows
	}

	log.Info("match stage complete",
		zap.Int("merged", counts.Units),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
	return counts, nil
}

func mergePair(_ context.Context, pair Pair, inputDir, outPath string) (int64, error) {
	ue, err := tabular.ReadAll(filepath.Join(inputDir, pair.UE.Filename))
	if err != nil {
		return 0, eris.Wrap(err, "match: read UE file")
	}
	coll, err := tabular.ReadAll(filepath.Join(inputDir, pair.Collateral.Filename))
	if err != nil {
		return 0, eris.Wrap(err, "match: read collateral file")
	}

	merged, stats, err := LeftJoin(ue, coll)
	if err != nil {
		return 0, err
	}

	w, err := tabular.NewAtomicWriter(outPath)
	if err != nil {
		return 0, err
	}
	if err := w.WriteHeader(merged.Header); err != nil {
		w.Abort()
		return 0, err
	}
	if err := w.WriteRows(merged.Rows); err != nil {
		w.Abort()
		return 0, err
	}
	if err := w.Commit(); err != nil {
		return 0, err
	}

	zap.L().Debug("pair merged",
		zap.String("file", filepath.Base(outPath)),
		zap.String("keys", stats.UEKey+"="+stats.CollKey),
		zap.Int("ue_rows", stats.UERows),
		zap.Int("merged_rows", stats.MergedRows),
	)
	return int64(stats.MergedRows), nil
}
