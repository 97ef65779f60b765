package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Regroup pool outputs by obligor country",
	Long:  "Detects each pool file's country from a bounded row sample, builds a unified column schema per country, and streams every contributing file into one country CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		counts, err := runCountries(ctx, reg)
		if err != nil {
			return err
		}
		zap.L().Info("countries done",
			zap.Int("merged", counts.Units),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
			zap.Int64("rows", counts.Rows),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(countriesCmd)
}
