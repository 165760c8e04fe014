package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/LightningDocs/monthly-double-checker-v2/config"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/health"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/scheduler"
)

// NewScheduleCommand creates the schedule command
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the sync on an interval and serve health and metrics",
		Long: `Run the sync every SCHEDULER_INTERVAL with the default cutoff (the first day of
the previous month) until interrupted.

Health probes are served under /api/v1/health and Prometheus metrics under
/metrics on HTTP_PORT.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitUsage, "failed to load configuration", err)
			}
			return runSchedule(cmd.Context(), cfg, rootOpts.now)
		},
	}
	return cmd
}

func runSchedule(ctx context.Context, cfg *config.Config, now func() time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to initialise", err)
	}
	defer a.close()
	log := a.logger.WithContext(ctx)

	if err := a.start(ctx); err != nil {
		a.notifier().Notify(context.WithoutCancel(ctx), failureTitle, fmt.Sprintf("Startup failed: %v", err), false)
		return WrapExitError(ExitFailure, "startup failed", err)
	}

	checker := health.NewChecker(cfg.Version)
	checker.AddCheck("mongo", a.mongo)
	if a.redis != nil {
		checker.AddCheck("redis", a.redis)
	}

	runner, err := a.runner(checker)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build reconciliation driver", err)
	}

	e := newServer(checker)
	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.WithField("addr", addr).Info("Serving health and metrics")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sched := scheduler.NewScheduler(func(ctx context.Context) error {
		_, err := runner.Run(ctx, DefaultCutoff(now()))
		return err
	}, scheduler.Config{Interval: cfg.SchedulerInterval, RunOnStart: true}, a.logger)
	if err := sched.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start scheduler", err)
	}
	checker.SetReady(true)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serverErr:
		runErr = WrapExitError(ExitFailure, "health server failed", err)
	}
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Health server did not stop cleanly")
	}
	return runErr
}

// newServer builds the echo server for health probes and metrics scraping
func newServer(checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return e
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
