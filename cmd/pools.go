package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "Merge ECB and ESMA feeds pool by pool",
	Long:  "Classifies pools into matched, ECB-only and ESMA-only, harmonises ECB columns to ESMA field codes via the template mapping, deduplicates overlap pools, and writes one finalized CSV per pool.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		counts, err := runPools(ctx, reg)
		if err != nil {
			return err
		}
		zap.L().Info("pools done",
			zap.Int("merged", counts.Units),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
			zap.Int64("rows", counts.Rows),
			zap.Int64("dedup_dropped", counts.DedupDropped),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(poolsCmd)
}
