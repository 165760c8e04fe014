package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/LightningDocs/monthly-double-checker-v2/config"
)

// SyncOptions holds flags for the sync command
type SyncOptions struct {
	*RootOptions
	Date   string
	DryRun bool
}

// NewSyncCommand creates the sync command
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass",
		Long: `Reconcile every Knackly record with a lastModified on or after --date.

Example:
  double-checker sync
  double-checker sync --date 2024-06-01
  double-checker sync --date 2024-06-01 --dry-run`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := ParseCutoff(opts.Date, opts.now())
			if err != nil {
				return WrapExitError(ExitUsage, "invalid --date", err)
			}
			cfg, err := config.Load(opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitUsage, "failed to load configuration", err)
			}
			return runSync(cmd.Context(), cfg, cutoff, opts.DryRun)
		},
	}

	cmd.Flags().StringVar(&opts.Date, "date", "", "records modified on or after this day (YYYY-MM-DD), defaults to the first of the previous month")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "enumerate and diff only, write nothing")

	return cmd
}

func runSync(ctx context.Context, cfg *config.Config, cutoff time.Time, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	a, err := newApp(ctx, cfg, dryRun)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to initialise", err)
	}
	defer a.close()

	a.logger.WithContext(ctx).WithFields(map[string]any{
		"cutoff":  cutoff.Format(DateLayout),
		"dry_run": dryRun,
		"version": cfg.Version,
	}).Infof("Starting %s", cfg.AppName)

	if err := a.start(ctx); err != nil {
		a.notifier().Notify(ctx, failureTitle, fmt.Sprintf("Startup failed: %v", err), false)
		return WrapExitError(ExitFailure, "startup failed", err)
	}

	runner, err := a.runner(nil)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to build reconciliation driver", err)
	}
	if _, err := runner.Run(ctx, cutoff); err != nil {
		return WrapExitError(ExitFailure, "sync failed", err)
	}
	return nil
}
