package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/trustscore/internal/aggregate"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Apply the retention windows to stored data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := aggregate.NewSweeper(st, cfg.Retention).Sweep(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rep)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// initStore migrates before returning.
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		_, _ = cmd.OutOrStdout().Write([]byte("schema up to date (" + cfg.Store.Driver + ")\n"))
		return st.Close()
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd, migrateCmd)
}
