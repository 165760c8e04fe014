package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/reconcile"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/redis"
)

const (
	successTitle = "Monthly double checker finished"
	failureTitle = "Monthly double checker failed"
)

type reconciler interface {
	Run(ctx context.Context, cutoff time.Time) (reconcile.Summary, error)
}

type runGuard interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type runNotifier interface {
	Notify(ctx context.Context, title, message string, success bool)
}

type runRecorder interface {
	RecordRun(success bool, message string, finishedAt time.Time)
}

// PushConfig points at a Prometheus Pushgateway. An empty URL disables pushing.
type PushConfig struct {
	URL string
	Job string
}

// Runner executes one guarded reconciliation run and reports its outcome
type Runner struct {
	driver   reconciler
	guard    runGuard
	notifier runNotifier
	recorder runRecorder
	push     PushConfig
	logger   ectologger.Logger
	now      func() time.Time
}

// NewRunner creates a Runner. guard and recorder may be nil.
func NewRunner(driver reconciler, guard runGuard, notifier runNotifier, recorder runRecorder, push PushConfig, logger ectologger.Logger) *Runner {
	return &Runner{
		driver:   driver,
		guard:    guard,
		notifier: notifier,
		recorder: recorder,
		push:     push,
		logger:   logger,
		now:      time.Now,
	}
}

// Run reconciles records modified since cutoff under a fresh run ID
func (r *Runner) Run(ctx context.Context, cutoff time.Time) (reconcile.Summary, error) {
	if appctx.GetRunID(ctx) == "" {
		ctx = appctx.SetRunID(ctx, uuid.NewString())
	}

	var summary reconcile.Summary
	run := func(ctx context.Context) error {
		var err error
		summary, err = r.driver.Run(ctx, cutoff)
		return err
	}

	var err error
	if r.guard != nil {
		err = r.guard.Do(ctx, run)
	} else {
		err = run(ctx)
	}

	r.report(ctx, cutoff, summary, err)
	return summary, err
}

func (r *Runner) report(ctx context.Context, cutoff time.Time, summary reconcile.Summary, err error) {
	log := r.logger.WithContext(ctx).WithFields(appctx.Fields(ctx))

	success := err == nil
	message := summary.Message()
	title := successTitle
	if !success {
		title = failureTitle
		message = failureMessage(cutoff, summary, err)
		log.WithError(err).Error(message)
	}

	// the run context may already be cancelled by a shutdown signal; the report still goes out
	ctx = context.WithoutCancel(ctx)
	if r.notifier != nil {
		r.notifier.Notify(ctx, title, message, success)
	}
	if r.recorder != nil {
		r.recorder.RecordRun(success, message, r.now())
	}

	if r.push.URL == "" {
		return
	}
	grouping := map[string]string{"instance": r.push.Job}
	if pushErr := metrics.Push(ctx, r.push.URL, r.push.Job, grouping); pushErr != nil {
		log.WithError(pushErr).Warn("Failed to push run metrics")
	}
}

func failureMessage(cutoff time.Time, summary reconcile.Summary, err error) string {
	if errors.Is(err, redis.ErrRunInProgress) {
		return fmt.Sprintf("Run for records modified since %s was skipped: another run holds the lock", cutoff.Format(DateLayout))
	}
	if summary.Enumerated == 0 && summary.Inserted == 0 && summary.Updated == 0 {
		return fmt.Sprintf("Run for records modified since %s aborted: %v", cutoff.Format(DateLayout), err)
	}
	return fmt.Sprintf("Run aborted after %s: %v", summary.Message(), err)
}
