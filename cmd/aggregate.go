package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	aggregateMaxURLs int
	aggregateVerbose bool
	recomputeRun     bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Run one aggregation pass now",
	Long:  "Scores every URL with unprocessed ratings once, for manual recovery or backfill. Domains without fresh signals score with neutral defaults; use refresh to fetch them first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if aggregateMaxURLs > 0 {
			cfg.Scheduler.MaxURLsPerRun = aggregateMaxURLs
		}

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Aggregator.RunPass(ctx)
		if err != nil {
			return eris.Wrap(err, "aggregate")
		}

		zap.L().Info("aggregate complete",
			zap.Int("processed", report.Processed),
			zap.Int("skipped", report.Skipped),
			zap.Int("marked", report.Marked),
		)
		if !aggregateVerbose {
			report.Outcomes = nil
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Reset all ratings to unprocessed after a scoring config change",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Aggregator.RecomputeAll(ctx)
		if err != nil {
			return err
		}
		if !recomputeRun {
			return writeJSON(cmd.OutOrStdout(), res)
		}

		report, err := env.Aggregator.RunPass(ctx)
		if err != nil {
			return eris.Wrap(err, "recompute: run pass")
		}
		report.Outcomes = nil
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"recompute": res,
			"pass":      report,
		})
	},
}

func init() {
	aggregateCmd.Flags().IntVar(&aggregateMaxURLs, "max-urls", 0, "max URLs to score (default from config)")
	aggregateCmd.Flags().BoolVarP(&aggregateVerbose, "verbose", "v", false, "include per-URL outcomes")
	recomputeCmd.Flags().BoolVar(&recomputeRun, "run", false, "run one pass right after resetting")
	rootCmd.AddCommand(aggregateCmd, recomputeCmd)
}
