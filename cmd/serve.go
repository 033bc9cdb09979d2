package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/aggregate"
	"github.com/sells-group/trustscore/internal/api"
	"github.com/sells-group/trustscore/internal/monitoring"
)

var (
	servePort        int
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the rating API and run scheduled aggregation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		var bg sync.WaitGroup
		defer bg.Wait()

		if env.Refresher != nil {
			env.Refresher.Start(ctx)
			defer env.Refresher.Wait()
		}

		scheduler := aggregate.NewScheduler(env.Aggregator, time.Duration(cfg.Scheduler.IntervalSecs)*time.Second)
		defer scheduler.Wait()
		if !serveNoScheduler {
			bg.Add(1)
			go func() {
				defer bg.Done()
				scheduler.Run(ctx)
			}()
		}

		if cfg.Retention.Enabled {
			sweeper := aggregate.NewSweeper(env.Store, cfg.Retention)
			bg.Add(1)
			go func() {
				defer bg.Done()
				sweeper.Run(ctx)
			}()
		}

		if cfg.Monitoring.Enabled {
			var refresh monitoring.RefreshSource
			if env.Refresher != nil {
				refresh = env.Refresher
			}
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store, scheduler, env.Breakers, refresh),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			bg.Add(1)
			go func() {
				defer bg.Done()
				checker.Run(ctx)
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.New(env.Service, scheduler, cfg.Server.AllowedOrigins).WithBaseContext(ctx).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("scheduler", !serveNoScheduler),
			zap.Bool("signals", env.Refresher != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "serve the API without scheduled aggregation passes")
	rootCmd.AddCommand(serveCmd)
}
