package notify

import (
	"context"

	"github.com/Gobusters/ectologger"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/kafka"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

// Event types published to the Kafka topic
const (
	EventRunCompleted   = "run.completed"
	EventRunFailed      = "run.failed"
	EventRecordInserted = "record.inserted"
	EventRecordUpdated  = "record.updated"
)

type publisher interface {
	Publish(ctx context.Context, key string, evt *kafka.Event) error
}

// Kafka publishes run outcomes and record changes as events
type Kafka struct {
	producer publisher
	logger   ectologger.Logger
}

// NewKafka creates a Kafka notifier
func NewKafka(producer publisher, logger ectologger.Logger) *Kafka {
	return &Kafka{
		producer: producer,
		logger:   logger,
	}
}

func (k *Kafka) Name() string { return "kafka" }

// RunPayload is the body of run.completed and run.failed events
type RunPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// RecordPayload is the body of record.inserted and record.updated events
type RecordPayload struct {
	RecordID       string   `json:"record_id"`
	Catalog        string   `json:"catalog"`
	ResponsibleApp *string  `json:"responsible_app"`
	TimelineLength int      `json:"timeline_length"`
	BillingApps    []string `json:"billing_apps"`
}

// Notify publishes a run event keyed by run id
func (k *Kafka) Notify(ctx context.Context, title, message string, success bool) error {
	eventType := EventRunCompleted
	if !success {
		eventType = EventRunFailed
	}
	runID := appctx.GetRunID(ctx)
	return k.producer.Publish(ctx, runID, &kafka.Event{
		Type:    eventType,
		RunID:   runID,
		Payload: RunPayload{Title: title, Message: message, Success: success},
	})
}

// RecordInserted publishes a record.inserted event
func (k *Kafka) RecordInserted(ctx context.Context, doc models.RecordDocument) {
	k.publishRecord(ctx, EventRecordInserted, doc)
}

// RecordUpdated publishes a record.updated event
func (k *Kafka) RecordUpdated(ctx context.Context, doc models.RecordDocument) {
	k.publishRecord(ctx, EventRecordUpdated, doc)
}

func (k *Kafka) publishRecord(ctx context.Context, eventType string, doc models.RecordDocument) {
	err := k.producer.Publish(ctx, doc.RecordID, &kafka.Event{
		Type:  eventType,
		RunID: appctx.GetRunID(ctx),
		Payload: RecordPayload{
			RecordID:       doc.RecordID,
			Catalog:        doc.Catalog,
			ResponsibleApp: doc.ResponsibleApp,
			TimelineLength: len(doc.Timeline),
			BillingApps:    doc.BillingApps(),
		},
	})
	if err != nil {
		k.logger.WithContext(ctx).WithError(err).WithField("record_id", doc.RecordID).
			Warnf("Failed to publish %s event", eventType)
	}
}
