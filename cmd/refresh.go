package main

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/trustscore/internal/model"
	"github.com/sells-group/trustscore/internal/urlnorm"
)

var refreshForce bool

type refreshResult struct {
	Domain string                  `json:"domain"`
	Entry  *model.DomainCacheEntry `json:"entry,omitempty"`
	Error  string                  `json:"error,omitempty"`
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <domain>...",
	Short: "Fetch domain signals now and update the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Refresher == nil {
			return eris.New("signal providers are disabled (TRUST_SIGNALS_ENABLED)")
		}

		results := make([]refreshResult, len(args))
		var mu sync.Mutex
		failed := 0

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, cfg.Signals.Workers))
		for i, arg := range args {
			g.Go(func() error {
				domain, err := urlnorm.Domain(arg)
				if err != nil {
					results[i] = refreshResult{Domain: arg, Error: err.Error()}
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				entry, err := env.Refresher.RefreshNow(gctx, domain, refreshForce)
				if err != nil {
					zap.L().Warn("refresh failed", zap.String("domain", domain), zap.Error(err))
					results[i] = refreshResult{Domain: domain, Error: err.Error()}
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}
				results[i] = refreshResult{Domain: domain, Entry: &entry}
				return nil
			})
		}
		_ = g.Wait()

		zap.L().Info("refresh complete",
			zap.Int("domains", len(args)),
			zap.Int("failed", failed),
		)
		return writeJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "refetch even when the cached entry is fresh")
	rootCmd.AddCommand(refreshCmd)
}
