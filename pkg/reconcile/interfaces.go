package reconcile

import (
	"context"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

// SourceClient is the remote system records are read from
type SourceClient interface {
	ListPartitions(ctx context.Context) ([]string, error)
	ListRecords(ctx context.Context, catalog string, filter models.RecordFilter, skip, limit int) ([]models.RecordMetadata, error)
	FetchDetail(ctx context.Context, id, catalog string) (models.RecordDetail, error)
}

// SinkStore is the document store records are written to.
// Connectivity failures surface as syncerr.StoreUnavailableError.
type SinkStore interface {
	FindExistingIdentifiers(ctx context.Context, ids []string) (map[string]bool, error)
	// FindOne returns nil when no document has the identifier
	FindOne(ctx context.Context, id string) (*models.RecordDocument, error)
	InsertOne(ctx context.Context, doc models.RecordDocument) error
	ReplaceOne(ctx context.Context, id string, doc models.RecordDocument) error
}

// ChangeListener is told about every document written during a run. It is best effort.
type ChangeListener interface {
	RecordInserted(ctx context.Context, doc models.RecordDocument)
	RecordUpdated(ctx context.Context, doc models.RecordDocument)
}
