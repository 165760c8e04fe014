package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

// DefaultPageSize is the listing page size used when none is configured
const DefaultPageSize = 1000

// Enumerator walks every catalog of the source and lists the records modified since a cutoff
type Enumerator struct {
	source   SourceClient
	logger   ectologger.Logger
	status   models.RecordStatus
	pageSize int
}

// NewEnumerator creates an enumerator that lists records with the given status
func NewEnumerator(source SourceClient, logger ectologger.Logger, status models.RecordStatus, pageSize int) *Enumerator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Enumerator{
		source:   source,
		logger:   logger,
		status:   status,
		pageSize: pageSize,
	}
}

// Partitions lists the catalogs visible to the source
func (e *Enumerator) Partitions(ctx context.Context) ([]string, error) {
	partitions, err := e.source.ListPartitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}
	return partitions, nil
}

// Filter returns the listing filter for a cutoff day. Records modified at or after midnight of
// the cutoff match.
func (e *Enumerator) Filter(cutoff time.Time) models.RecordFilter {
	day := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, time.UTC)
	return models.RecordFilter{
		Status:       e.status,
		LastModified: models.ModifiedAfter(day),
	}
}

// ListRecords pages through a catalog until a short page comes back.
// A failed page discards everything listed so far; the caller restarts from offset 0.
func (e *Enumerator) ListRecords(ctx context.Context, catalog string, cutoff time.Time) ([]models.RecordMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Enumerator.ListRecords")
	defer span.End()

	filter := e.Filter(cutoff)
	var records []models.RecordMetadata
	for skip := 0; ; skip += e.pageSize {
		page, err := e.source.ListRecords(ctx, catalog, filter, skip, e.pageSize)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, fmt.Errorf("failed to list catalog %s at offset %d: %w", catalog, skip, err)
		}
		records = append(records, page...)

		e.logger.WithContext(ctx).WithFields(map[string]any{
			"catalog": catalog,
			"skip":    skip,
			"count":   len(page),
		}).Debug("Listed record page")

		if len(page) < e.pageSize {
			return records, nil
		}
	}
}
