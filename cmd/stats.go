package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/trustscore/internal/urlnorm"
)

var statsByURL bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show materialized trust statistics",
}

var statsURLCmd = &cobra.Command{
	Use:   "url <hash|url>",
	Short: "Show the stats of one URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		hash := args[0]
		if statsByURL {
			h, err := urlnorm.Hash(hash)
			if err != nil {
				return err
			}
			hash = h
		}

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Service.GetURLStats(ctx, hash)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.Errorf("no stats for url hash %s", hash)
		}
		return writeJSON(cmd.OutOrStdout(), st)
	},
}

var statsDomainCmd = &cobra.Command{
	Use:   "domain <domain>",
	Short: "Show the aggregate stats of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		st, err := env.Service.GetDomainStats(ctx, args[0])
		if err != nil {
			return err
		}
		if st == nil {
			return eris.Errorf("no stats for domain %s", args[0])
		}
		return writeJSON(cmd.OutOrStdout(), st)
	},
}

func init() {
	statsURLCmd.Flags().BoolVar(&statsByURL, "url", false, "treat the argument as a URL and hash it")
	statsCmd.AddCommand(statsURLCmd, statsDomainCmd)
	rootCmd.AddCommand(statsCmd)
}
