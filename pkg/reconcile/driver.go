package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/merging"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/normalizer"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/syncerr"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

// Phases of a run, attached to the context and logged as the "phase" field
const (
	PhaseEnumerate = "enumerate"
	PhaseDiff      = "diff"
	PhaseInsert    = "insert"
	PhaseUpdate    = "update"
)

// Run status labels recorded with the run metrics
const (
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

// Options tune a Driver
type Options struct {
	// Workers is the number of records processed concurrently within a phase
	Workers int
	// DryRun enumerates and diffs but never fetches details or writes
	DryRun bool
	// Listener is told about every document written. Optional.
	Listener ChangeListener
}

// Driver runs one reconciliation pass: Enumerate, Diff, Insert(new), Update(known).
type Driver struct {
	enumerator *Enumerator
	source     SourceClient
	sink       SinkStore
	normalizer *normalizer.Normalizer
	engine     *merging.Engine
	logger     ectologger.Logger
	opts       Options
}

// NewDriver creates a reconciliation driver
func NewDriver(
	enumerator *Enumerator,
	source SourceClient,
	sink SinkStore,
	n *normalizer.Normalizer,
	engine *merging.Engine,
	logger ectologger.Logger,
	opts Options,
) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Driver{
		enumerator: enumerator,
		source:     source,
		sink:       sink,
		normalizer: n,
		engine:     engine,
		logger:     logger,
		opts:       opts,
	}
}

// Run reconciles every record modified at or after cutoff. The returned summary is valid even
// when a fatal error aborts the run; it then holds the counts reached before the abort.
func (d *Driver) Run(ctx context.Context, cutoff time.Time) (Summary, error) {
	runID := appctx.GetRunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = appctx.SetRunID(ctx, runID)
	}
	ctx, span := tracing.StartSpan(ctx, "reconcile.Driver.Run")
	defer span.End()

	started := time.Now()
	agg := &aggregator{summary: Summary{RunID: runID, Cutoff: cutoff, DryRun: d.opts.DryRun}}

	d.log(ctx).WithFields(map[string]any{
		"cutoff":  cutoff.Format(time.DateOnly),
		"dry_run": d.opts.DryRun,
		"workers": d.opts.Workers,
	}).Info("Starting reconciliation run")

	err := d.run(ctx, cutoff, agg)

	agg.mu.Lock()
	agg.summary.Duration = time.Since(started)
	agg.mu.Unlock()
	summary := agg.snapshot()
	d.recordMetrics(summary, err)

	if err != nil {
		tracing.RecordError(span, err)
		d.log(ctx).WithError(err).WithFields(summary.Fields()).Error("Reconciliation run aborted")
		return summary, err
	}

	d.log(ctx).WithFields(summary.Fields()).Infof("Reconciliation run finished: %s", summary.Message())
	return summary, nil
}

func (d *Driver) run(ctx context.Context, cutoff time.Time, agg *aggregator) error {
	index, err := d.enumerate(appctx.SetPhase(ctx, PhaseEnumerate), cutoff, agg)
	if err != nil {
		return err
	}
	agg.setEnumerated(index.Len())
	if index.Len() == 0 {
		return nil
	}

	fresh, known, err := d.diff(appctx.SetPhase(ctx, PhaseDiff), index)
	if err != nil {
		return err
	}

	insertCtx, insertSpan := tracing.StartSpan(appctx.SetPhase(ctx, PhaseInsert), "reconcile.Driver.Insert")
	err = forEach(insertCtx, fresh, d.opts.Workers, func(ctx context.Context, id string) error {
		meta, _ := index.Get(id)
		return d.insert(ctx, meta, agg)
	})
	insertSpan.End()
	if err != nil {
		return fmt.Errorf("insert phase: %w", err)
	}

	updateCtx, updateSpan := tracing.StartSpan(appctx.SetPhase(ctx, PhaseUpdate), "reconcile.Driver.Update")
	err = forEach(updateCtx, known, d.opts.Workers, func(ctx context.Context, id string) error {
		meta, _ := index.Get(id)
		return d.update(ctx, meta, agg)
	})
	updateSpan.End()
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

// enumerate builds the run's identifier index. A catalog whose listing fails with a non-fatal
// error is skipped with a warning and picked up again by the next run.
func (d *Driver) enumerate(ctx context.Context, cutoff time.Time, agg *aggregator) (*Index, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Driver.Enumerate")
	defer span.End()

	partitions, err := d.enumerator.Partitions(ctx)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	index := NewIndex()
	for _, catalog := range partitions {
		catalogCtx := appctx.SetCatalog(ctx, catalog)

		records, err := d.enumerator.ListRecords(catalogCtx, catalog, cutoff)
		if err != nil {
			if syncerr.IsFatal(err) {
				tracing.RecordError(span, err)
				return nil, err
			}
			agg.warn()
			d.log(catalogCtx).WithError(err).Warn("Skipping catalog after listing failure")
			continue
		}

		for _, meta := range records {
			previous, duplicate := index.Put(meta)
			if duplicate && previous.Catalog != meta.Catalog {
				agg.warn()
				warning := syncerr.NewDataIntegrityWarning(meta.ID,
					"listed in catalog %s and %s, keeping %s", previous.Catalog, meta.Catalog, meta.Catalog)
				d.log(appctx.SetRecordID(catalogCtx, meta.ID)).WithError(warning).Warn("Duplicate record identifier")
			}
		}

		d.log(catalogCtx).WithField("count", len(records)).Info("Enumerated catalog")
	}
	return index, nil
}

func (d *Driver) diff(ctx context.Context, index *Index) (fresh, known []string, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Driver.Diff")
	defer span.End()

	existing, err := d.sink.FindExistingIdentifiers(ctx, index.IDs())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, nil, fmt.Errorf("failed to diff identifiers: %w", err)
	}

	fresh, known = index.Split(existing)
	d.log(ctx).WithFields(map[string]any{
		"new":   len(fresh),
		"known": len(known),
	}).Info("Diffed identifiers against sink")
	return fresh, known, nil
}

// insert creates the document for a record the sink has never seen.
// Only fatal errors are returned; everything else is counted.
func (d *Driver) insert(ctx context.Context, meta models.RecordMetadata, agg *aggregator) error {
	ctx = appctx.SetRecordID(appctx.SetCatalog(ctx, meta.Catalog), meta.ID)

	if d.opts.DryRun {
		d.log(ctx).Info("Would insert record")
		agg.record(OutcomeInserted)
		return nil
	}

	detail, err := d.source.FetchDetail(ctx, meta.ID, meta.Catalog)
	if err != nil {
		return d.fetchFailed(ctx, err, agg)
	}

	if len(detail.Apps) == 0 {
		agg.warn()
		agg.record(OutcomeSkipped)
		d.log(ctx).WithError(syncerr.NewDataIntegrityWarning(meta.ID, "record has no apps")).
			Warn("Skipping new record without apps")
		return nil
	}

	doc := d.normalizer.Normalize(detail, meta.Catalog)
	if err := d.sink.InsertOne(ctx, doc); err != nil {
		return d.writeFailed(ctx, err, agg, "Failed to insert record")
	}

	agg.record(OutcomeInserted)
	d.log(ctx).Debug("Inserted record")
	if d.opts.Listener != nil {
		d.opts.Listener.RecordInserted(ctx, doc)
	}
	return nil
}

// update merges a fresh snapshot into a known record once its source timestamp has moved
// past the grace window. Only fatal errors are returned.
func (d *Driver) update(ctx context.Context, meta models.RecordMetadata, agg *aggregator) error {
	ctx = appctx.SetRecordID(appctx.SetCatalog(ctx, meta.Catalog), meta.ID)

	previous, err := d.sink.FindOne(ctx, meta.ID)
	if err != nil {
		return d.writeFailed(ctx, err, agg, "Failed to load record")
	}
	if previous == nil {
		agg.warn()
		agg.record(OutcomeSkipped)
		d.log(ctx).Warn("Known record disappeared from sink before update")
		return nil
	}

	if !d.engine.ShouldUpdate(meta.LastModified, previous.InternallyModified) {
		agg.record(OutcomeSkipped)
		return nil
	}

	if d.opts.DryRun {
		d.log(ctx).WithFields(map[string]any{
			"last_modified":       meta.LastModified,
			"internally_modified": previous.InternallyModified,
		}).Info("Would update record")
		agg.record(OutcomeUpdated)
		return nil
	}

	detail, err := d.source.FetchDetail(ctx, meta.ID, meta.Catalog)
	if err != nil {
		return d.fetchFailed(ctx, err, agg)
	}

	merged := d.engine.Merge(*previous, detail)
	if err := d.sink.ReplaceOne(ctx, meta.ID, merged); err != nil {
		return d.writeFailed(ctx, err, agg, "Failed to replace record")
	}

	agg.record(OutcomeUpdated)
	d.log(ctx).WithField("timeline_length", len(merged.Timeline)).Debug("Updated record")
	if d.opts.Listener != nil {
		d.opts.Listener.RecordUpdated(ctx, merged)
	}
	return nil
}

func (d *Driver) fetchFailed(ctx context.Context, err error, agg *aggregator) error {
	switch {
	case syncerr.IsFatal(err):
		return err
	case errors.Is(err, syncerr.ErrNotFound):
		agg.warn()
		agg.record(OutcomeSkipped)
		d.log(ctx).WithError(err).Warn("Record vanished from source before fetch")
	default:
		agg.record(OutcomeFailed)
		d.log(ctx).WithError(err).Error("Failed to fetch record detail")
	}
	return nil
}

func (d *Driver) writeFailed(ctx context.Context, err error, agg *aggregator, msg string) error {
	if syncerr.IsFatal(err) {
		return err
	}
	agg.record(OutcomeFailed)
	d.log(ctx).WithError(err).Error(msg)
	return nil
}

func (d *Driver) recordMetrics(summary Summary, err error) {
	metrics.RecordOutcome(string(OutcomeInserted), summary.Inserted)
	metrics.RecordOutcome(string(OutcomeUpdated), summary.Updated)
	metrics.RecordOutcome(string(OutcomeSkipped), summary.Skipped)
	metrics.RecordOutcome(string(OutcomeFailed), summary.Failed)
	metrics.RecordOutcome("warned", summary.Warned)

	status := RunStatusSuccess
	if err != nil {
		status = RunStatusFailure
	}
	metrics.RecordRun(status, summary.Duration.Seconds(), float64(time.Now().Unix()))
}

func (d *Driver) log(ctx context.Context) ectologger.Logger {
	return d.logger.WithContext(ctx).WithFields(appctx.Fields(ctx))
}
