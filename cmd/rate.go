package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/service"
)

var rateInput service.RatingInput

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Submit a rating",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		// The refresher is not started here. Signals are fetched by serve
		// or refresh.
		id, err := env.Service.SubmitRating(ctx, rateInput)
		if err != nil {
			return err
		}

		zap.L().Info("rating stored", zap.String("id", id))
		return writeJSON(cmd.OutOrStdout(), map[string]string{"id": id})
	},
}

func init() {
	f := rateCmd.Flags()
	f.StringVar(&rateInput.URL, "url", "", "rated URL")
	f.StringVar(&rateInput.URLHash, "hash", "", "URL hash, when the URL is not known")
	f.StringVar(&rateInput.Domain, "domain", "", "domain (derived from --url when empty)")
	f.StringVar(&rateInput.UserRef, "user", "", "opaque user reference")
	f.IntVar(&rateInput.Score, "score", 0, "score from 1 to 5 (required)")
	f.BoolVar(&rateInput.Flags.IsSpam, "spam", false, "report as spam")
	f.BoolVar(&rateInput.Flags.IsMisleading, "misleading", false, "report as misleading")
	f.BoolVar(&rateInput.Flags.IsScam, "scam", false, "report as scam")
	_ = rateCmd.MarkFlagRequired("score")
	rootCmd.AddCommand(rateCmd)
}
