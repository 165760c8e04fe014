package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/syncerr"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

const (
	recordIDField = "record_id"

	// identifierBatchSize keeps $in queries well under the 16MB command limit
	identifierBatchSize = 5000
)

// Repository is the document store for reconciled records
type Repository struct {
	collection *mongo.Collection
	logger     ectologger.Logger
}

// NewRepository creates a record repository over the named collection
func NewRepository(db *mongo.Database, collection string, logger ectologger.Logger) *Repository {
	return &Repository{
		collection: db.Collection(collection),
		logger:     logger,
	}
}

// EnsureIndexes creates the unique record_id index
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.EnsureIndexes")
	defer span.End()

	name, err := r.collection.Indexes().CreateOne(ctx, recordIDIndex())
	if err != nil {
		tracing.RecordError(span, err)
		return classify("create index", err)
	}

	r.logger.WithContext(ctx).WithField("index", name).Debug("Ensured record index")
	return nil
}

// FindExistingIdentifiers returns the subset of ids that already have a document
func (r *Repository) FindExistingIdentifiers(ctx context.Context, ids []string) (map[string]bool, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.FindExistingIdentifiers")
	defer span.End()
	defer observe("find_existing", time.Now())

	found := make(map[string]bool, len(ids))
	for _, batch := range chunk(ids, identifierBatchSize) {
		cursor, err := r.collection.Find(ctx, existingFilter(batch),
			options.Find().SetProjection(bson.M{recordIDField: 1, "_id": 0}))
		if err != nil {
			tracing.RecordError(span, err)
			return nil, classify("find existing identifiers", err)
		}

		var rows []struct {
			RecordID string `bson:"record_id"`
		}
		if err := cursor.All(ctx, &rows); err != nil {
			tracing.RecordError(span, err)
			return nil, classify("read existing identifiers", err)
		}
		for _, row := range rows {
			found[row.RecordID] = true
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidates": len(ids),
		"existing":   len(found),
	}).Debug("Found existing record identifiers")

	return found, nil
}

// FindOne loads the document for a record. It returns nil when there is none.
func (r *Repository) FindOne(ctx context.Context, id string) (*models.RecordDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.FindOne")
	defer span.End()
	defer observe("find_one", time.Now())

	var doc models.RecordDocument
	err := r.collection.FindOne(ctx, recordFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, classify("find record", err)
	}
	return &doc, nil
}

// InsertOne stores the first document for a record
func (r *Repository) InsertOne(ctx context.Context, doc models.RecordDocument) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.InsertOne")
	defer span.End()
	defer observe("insert_one", time.Now())

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		tracing.RecordError(span, err)
		return classify("insert record", err)
	}
	return nil
}

// ReplaceOne swaps the stored document for a record with its merged successor
func (r *Repository) ReplaceOne(ctx context.Context, id string, doc models.RecordDocument) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.ReplaceOne")
	defer span.End()
	defer observe("replace_one", time.Now())

	result, err := r.collection.ReplaceOne(ctx, recordFilter(id), doc, options.Replace().SetUpsert(true))
	if err != nil {
		tracing.RecordError(span, err)
		return classify("replace record", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": id,
		"matched":   result.MatchedCount,
		"upserted":  result.UpsertedCount,
	}).Debug("Replaced record")
	return nil
}

func recordIDIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: recordIDField, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("record_id_unique"),
	}
}

func recordFilter(id string) bson.M {
	return bson.M{recordIDField: id}
}

func existingFilter(ids []string) bson.M {
	return bson.M{recordIDField: bson.M{"$in": ids}}
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// classify marks connectivity failures as StoreUnavailableError so the run aborts.
// Everything else is a per-record failure.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return syncerr.NewStoreUnavailableError(op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func observe(op string, started time.Time) {
	metrics.RecordSinkOperation(op, time.Since(started).Seconds())
}
