package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	httpctrl "github.com/secmon-lab/beetleboard/pkg/controller/http"
	"github.com/secmon-lab/beetleboard/pkg/service/worker"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var syncSecret string
	var syncCron string
	var initialDelay time.Duration
	var chainPasses bool
	var noScheduler bool
	var pipelineCfg pipelineConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("BEETLEBOARD_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "sync-secret",
			Usage:       "Bearer secret required by sync and flush endpoints (empty leaves them open)",
			Category:    "Sync",
			Sources:     cli.EnvVars("BEETLEBOARD_SYNC_SECRET", "CRON_SECRET"),
			Destination: &syncSecret,
		},
		&cli.StringFlag{
			Name:        "sync-cron",
			Usage:       "Cron expression of scheduled syncs, evaluated in UTC",
			Category:    "Sync",
			Value:       worker.DefaultSchedule,
			Sources:     cli.EnvVars("BEETLEBOARD_SYNC_CRON"),
			Destination: &syncCron,
		},
		&cli.DurationFlag{
			Name:        "initial-sync-delay",
			Usage:       "Delay before the first scheduled sync after startup",
			Category:    "Sync",
			Value:       worker.DefaultInitialDelay,
			Sources:     cli.EnvVars("BEETLEBOARD_INITIAL_SYNC_DELAY"),
			Destination: &initialDelay,
		},
		&cli.BoolFlag{
			Name:        "chain-passes",
			Usage:       "Run the next pass in the background after each non-final pass request",
			Category:    "Sync",
			Sources:     cli.EnvVars("BEETLEBOARD_CHAIN_PASSES"),
			Destination: &chainPasses,
		},
		&cli.BoolFlag{
			Name:        "no-scheduler",
			Usage:       "Disable scheduled syncs and serve manual triggers only",
			Category:    "Sync",
			Sources:     cli.EnvVars("BEETLEBOARD_NO_SCHEDULER"),
			Destination: &noScheduler,
		},
	}
	flags = append(flags, pipelineCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server with the sync scheduler",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := pipelineCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			schedOpts := []worker.SchedulerOption{
				worker.WithInitialDelay(initialDelay),
				worker.WithPassLimit(rt.uc.Sync.PassLimit()),
				worker.WithChainPasses(chainPasses),
				worker.WithResetter(rt.conn),
			}
			if rt.notifier != nil {
				schedOpts = append(schedOpts, worker.WithNotifier(rt.notifier))
			}

			scheduler, err := worker.NewSyncScheduler(rt.uc.Sync, syncCron, schedOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create sync scheduler")
			}
			if !noScheduler {
				if err := scheduler.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start sync scheduler")
				}
			} else {
				logging.Default().Info("Scheduled syncs disabled")
			}

			if syncSecret == "" {
				logging.Default().Warn("Sync secret not configured, sync and flush endpoints are open")
			}

			httpHandler := httpctrl.New(
				httpctrl.WithLeaderboard(rt.uc.Leaderboard),
				httpctrl.WithProfile(rt.uc.Profile),
				httpctrl.WithSync(scheduler),
				httpctrl.WithCache(rt.uc.Cache),
				httpctrl.WithSyncSecret(syncSecret),
				httpctrl.WithMetrics(true),
			)
			server := &http.Server{
				Addr:              addr,
				Handler:           httpHandler,
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				scheduler.Stop()
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// Stop the scheduler first so no new sync starts
				scheduler.Stop()

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Attempt graceful shutdown
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
