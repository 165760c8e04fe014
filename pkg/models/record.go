package models

import (
	"time"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/value"
)

// RecordStatus is the status the source reports for a record
type RecordStatus string

const (
	RecordStatusOk            RecordStatus = "Ok"
	RecordStatusNeedsUpdating RecordStatus = "Needs Updating"
)

// UserType classifies the principal that last ran a record
type UserType string

const (
	UserTypeAPI     UserType = "api"
	UserTypeRegular UserType = "regular"
)

// RecordMetadata is the lightweight listing entry returned when enumerating a catalog.
// It only lives for the duration of one run.
type RecordMetadata struct {
	ID           string       `json:"id"`
	Catalog      string       `json:"catalog"`
	LastModified time.Time    `json:"lastModified"`
	Created      time.Time    `json:"created"`
	Status       RecordStatus `json:"status"`
}

// AppExecution is one recorded run of a sub-application against a record.
//
// CreatedDate and UserType are sink-owned annotations: they are stamped when the
// app is first seen and carried forward on every later snapshot.
type AppExecution struct {
	Name        string      `json:"name" bson:"name"`
	RanAt       *time.Time  `json:"ranAt,omitempty" bson:"ran_at,omitempty"`
	CreatedDate *time.Time  `json:"ld_created_date,omitempty" bson:"ld_created_date,omitempty"`
	UserType    UserType    `json:"ld_user_type,omitempty" bson:"ld_user_type,omitempty"`
	Fields      value.Value `json:"fields,omitempty" bson:"fields,omitempty"`
}

// RecordDetail is a full record snapshot as fetched from the source.
// Snapshots are appended to a document's timeline and never edited afterwards.
type RecordDetail struct {
	ID             string         `json:"id" bson:"id"`
	Catalog        string         `json:"ld_catalog" bson:"ld_catalog"`
	Apps           []AppExecution `json:"apps" bson:"apps"`
	Data           value.Value    `json:"data" bson:"data"`
	LastRunBy      string         `json:"lastRunBy" bson:"lastRunBy"`
	Status         RecordStatus   `json:"status,omitempty" bson:"status,omitempty"`
	Created        time.Time      `json:"created" bson:"created"`
	LastModified   time.Time      `json:"lastModified" bson:"lastModified"`
	ResponsibleApp *string        `json:"responsible_app" bson:"responsible_app"`
	// Extra holds the remaining top-level fields of the source payload
	Extra value.Value `json:"extra,omitempty" bson:"extra,omitempty"`
}

// Clone returns a deep copy of the snapshot so callers can annotate it without
// touching the fetched original.
func (d RecordDetail) Clone() RecordDetail {
	out := d
	if d.Apps != nil {
		out.Apps = make([]AppExecution, len(d.Apps))
		for i, app := range d.Apps {
			out.Apps[i] = app.clone()
		}
	}
	out.ResponsibleApp = cloneString(d.ResponsibleApp)
	return out
}

// AppNames returns the distinct app names in first-seen order
func (d RecordDetail) AppNames() []string {
	seen := make(map[string]bool, len(d.Apps))
	names := make([]string, 0, len(d.Apps))
	for _, app := range d.Apps {
		if seen[app.Name] {
			continue
		}
		seen[app.Name] = true
		names = append(names, app.Name)
	}
	return names
}

func (a AppExecution) clone() AppExecution {
	out := a
	out.RanAt = cloneTime(a.RanAt)
	out.CreatedDate = cloneTime(a.CreatedDate)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
