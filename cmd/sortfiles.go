package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sortfilesCmd = &cobra.Command{
	Use:   "sortfiles",
	Short: "Sort each country file by loan, collateral and cut-off date",
	Long:  "Orders every country CSV by (RREL3, RREC3, RREL6) through an embedded SQLite staging table, so each loan-collateral pair's observations are contiguous.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		counts, err := runSort(ctx, reg)
		if err != nil {
			return err
		}
		zap.L().Info("sortfiles done",
			zap.Int("sorted", counts.Units),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
			zap.Int64("rows", counts.Rows),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sortfilesCmd)
}
