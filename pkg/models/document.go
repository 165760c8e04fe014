package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BillingEntry records whether an app's involvement in a record has been billed.
// Billed is nil until someone downstream decides.
type BillingEntry struct {
	App    string `json:"app" bson:"app"`
	Billed *bool  `json:"billed" bson:"billed"`
}

// RecordDocument is the persisted form of a record in the sink collection.
type RecordDocument struct {
	ID                 primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	RecordID           string             `json:"record_id" bson:"record_id"`
	Catalog            string             `json:"catalog" bson:"catalog"`
	Timeline           []RecordDetail     `json:"timeline" bson:"timeline"`
	Billing            []BillingEntry     `json:"billing" bson:"billing"`
	ResponsibleApp     *string            `json:"responsible_app" bson:"responsible_app"`
	InternallyModified time.Time          `json:"internally_modified" bson:"internally_modified"`
}

// Latest returns the most recent timeline snapshot
func (d RecordDocument) Latest() (RecordDetail, bool) {
	if len(d.Timeline) == 0 {
		return RecordDetail{}, false
	}
	return d.Timeline[len(d.Timeline)-1], true
}

// BillingApps returns the app names present in the billing array
func (d RecordDocument) BillingApps() []string {
	names := make([]string, 0, len(d.Billing))
	for _, entry := range d.Billing {
		names = append(names, entry.App)
	}
	return names
}
