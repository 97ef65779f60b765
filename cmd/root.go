package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-data/secmerge/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "secmerge",
	Short: "Securitisation loan-data reconciliation pipeline",
	Long:  "Merges ECB and ESMA loan-level disclosure feeds pool by pool, regroups the result by obligor country, and sorts each country file for time-series analysis.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
