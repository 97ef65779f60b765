package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Pair and left-join UE/Collateral disclosure files",
	Long:  "Scans the raw disclosure folder for UE/Collateral file pairs sharing (asset type, identifier, date) and left-joins each pair into one merged CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		counts, err := runMatch(ctx, reg)
		if err != nil {
			return err
		}
		zap.L().Info("match done",
			zap.Int("merged", counts.Units),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
}
