// Package merging folds freshly fetched records into previously stored documents
package merging

import (
	"time"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/normalizer"
)

// DefaultGrace is how far the source must be ahead of the sink before an update is due
const DefaultGrace = 5 * time.Minute

// ShouldUpdate reports whether the source copy is newer than the sink copy by more than grace
func ShouldUpdate(sourceLastModified, sinkInternallyModified time.Time, grace time.Duration) bool {
	return sourceLastModified.After(sinkInternallyModified.Add(grace))
}

// Engine merges fresh snapshots into stored documents
type Engine struct {
	normalizer *normalizer.Normalizer
	grace      time.Duration
}

// NewEngine creates a merge engine. A non-positive grace falls back to DefaultGrace.
func NewEngine(n *normalizer.Normalizer, grace time.Duration) *Engine {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Engine{
		normalizer: n,
		grace:      grace,
	}
}

// Grace returns the configured grace window
func (e *Engine) Grace() time.Duration {
	return e.grace
}

// ShouldUpdate applies the engine's grace window
func (e *Engine) ShouldUpdate(sourceLastModified, sinkInternallyModified time.Time) bool {
	return ShouldUpdate(sourceLastModified, sinkInternallyModified, e.grace)
}

// Merge returns a new document with fresh appended to previous's timeline.
//
// Existing timeline entries and billing entries are carried over unchanged, new app names get a
// null billing entry (unless the record is a test file) and the catalog stays what it was.
// Sink-owned per-app annotations recorded in earlier snapshots win over freshly computed ones.
// previous is not modified.
func (e *Engine) Merge(previous models.RecordDocument, fresh models.RecordDetail) models.RecordDocument {
	catalog := fresh.Catalog
	if catalog == "" {
		catalog = previous.Catalog
	}
	snapshot := e.normalizer.Snapshot(fresh, catalog)
	preserveAnnotations(previous.Timeline, &snapshot)

	timeline := make([]models.RecordDetail, 0, len(previous.Timeline)+1)
	timeline = append(timeline, previous.Timeline...)
	timeline = append(timeline, snapshot)

	responsible := snapshot.ResponsibleApp
	if responsible == nil && previous.ResponsibleApp != nil {
		name := *previous.ResponsibleApp
		responsible = &name
	}

	return models.RecordDocument{
		ID:                 previous.ID,
		RecordID:           previous.RecordID,
		Catalog:            previous.Catalog,
		Timeline:           timeline,
		Billing:            e.normalizer.Billing(snapshot, previous.Billing),
		ResponsibleApp:     responsible,
		InternallyModified: e.normalizer.Now(),
	}
}

type annotation struct {
	createdDate *time.Time
	userType    models.UserType
}

// preserveAnnotations copies the earliest recorded created date and user type of each app
// name onto the matching apps of snapshot
func preserveAnnotations(timeline []models.RecordDetail, snapshot *models.RecordDetail) {
	earliest := make(map[string]*annotation)
	for _, entry := range timeline {
		for _, app := range entry.Apps {
			a, ok := earliest[app.Name]
			if !ok {
				a = &annotation{}
				earliest[app.Name] = a
			}
			if a.createdDate == nil && app.CreatedDate != nil {
				created := *app.CreatedDate
				a.createdDate = &created
			}
			if a.userType == "" && app.UserType != "" {
				a.userType = app.UserType
			}
		}
	}

	for i := range snapshot.Apps {
		a, ok := earliest[snapshot.Apps[i].Name]
		if !ok {
			continue
		}
		if a.createdDate != nil {
			created := *a.createdDate
			snapshot.Apps[i].CreatedDate = &created
		}
		if a.userType != "" {
			snapshot.Apps[i].UserType = a.userType
		}
	}
}
