package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-data/secmerge/internal/checkpoint"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline end to end",
	Long:  "Executes match, pools, countries and sortfiles in order. Each stage resumes from its checkpoints, and the country stage only starts once the pool stage has finalized every output.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		runID, err := reg.StartRun(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("pipeline starting", zap.String("run_id", runID))

		stages := []struct {
			name string
			fn   func(context.Context, *checkpoint.Registry) (checkpoint.StageCounts, error)
		}{
			{"match", runMatch},
			{"pools", runPools},
			{"countries", runCountries},
			{"sort", runSort},
		}

		for _, stage := range stages {
			counts, err := stage.fn(ctx, reg)
			if err != nil {
				zap.L().Error("stage aborted", zap.String("stage", stage.name), zap.Error(err))
				return err
			}
			if err := reg.CompleteStage(ctx, runID, stage.name, counts); err != nil {
				return err
			}
		}

		if err := reg.CompleteRun(ctx, runID); err != nil {
			return err
		}
		zap.L().Info("pipeline complete", zap.String("run_id", runID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
