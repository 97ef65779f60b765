package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/meridian-data/secmerge/internal/checkpoint"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-stage checkpoint progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg, err := openRegistry()
		if err != nil {
			return err
		}
		defer reg.Close()

		stages, err := reg.Status(ctx)
		if err != nil {
			return err
		}
		if len(stages) == 0 {
			zap.L().Info("no completed units yet, run 'secmerge run' to start the pipeline")
			return nil
		}

		formatStatus(os.Stdout, stages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a tabular representation of stage progress to out.
func formatStatus(out io.Writer, stages []checkpoint.StageStatus) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tDONE\tROWS")
	_, _ = fmt.Fprintln(w, "-----\t----\t----")
	for _, s := range stages {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			s.Stage,
			p.Sprintf("%d", s.Done),
			p.Sprintf("%d", s.Rows),
		)
	}
	_ = w.Flush()
}
