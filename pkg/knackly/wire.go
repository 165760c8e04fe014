package knackly

import (
	"fmt"
	"strings"
	"time"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/syncerr"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/value"
)

// timestampLayouts are tried in order when parsing source timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// appRunKeys are the app fields that carry its last execution time, in order of preference
var appRunKeys = []string{"lastRun", "ranAt", "lastModified", "modified"}

// detailKeys are the top-level detail fields decoded into typed fields
var detailKeys = map[string]bool{
	"id":           true,
	"apps":         true,
	"data":         true,
	"lastRunBy":    true,
	"created":      true,
	"lastModified": true,
	"status":       true,
}

type catalogWire struct {
	Name string `json:"name"`
}

type recordMetadataWire struct {
	ID           string `json:"id"`
	LastModified string `json:"lastModified"`
	Created      string `json:"created"`
	Status       string `json:"status"`
}

// toModel converts the wire item. The returned warning is non-nil when a non-empty
// lastModified could not be parsed; the record is still returned with a zero LastModified.
func (w recordMetadataWire) toModel(catalog string) (models.RecordMetadata, error) {
	meta := models.RecordMetadata{
		ID:           w.ID,
		Catalog:      catalog,
		LastModified: parseTimestamp(w.LastModified),
		Created:      parseTimestamp(w.Created),
		Status:       models.RecordStatus(w.Status),
	}
	return meta, timestampWarning(w.ID, "lastModified", w.LastModified, meta.LastModified)
}

// timestampWarning reports a value that was present but matched none of timestampLayouts
func timestampWarning(recordID, field, raw string, parsed time.Time) error {
	if !parsed.IsZero() || strings.TrimSpace(raw) == "" {
		return nil
	}
	return syncerr.NewDataIntegrityWarning(recordID, "unparseable %s %q", field, raw)
}

// parseTimestamp returns the zero time for empty or unparseable values
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeDetail(raw map[string]any, catalog string) (models.RecordDetail, error) {
	payload, err := value.FromInterface(raw)
	if err != nil {
		return models.RecordDetail{}, fmt.Errorf("failed to decode record: %w", err)
	}

	detail := models.RecordDetail{
		ID:           stringField(payload, "id"),
		Catalog:      catalog,
		Data:         payload.Get("data"),
		LastRunBy:    stringField(payload, "lastRunBy"),
		Created:      parseTimestamp(stringField(payload, "created")),
		LastModified: parseTimestamp(stringField(payload, "lastModified")),
		Status:       models.RecordStatus(stringField(payload, "status")),
	}

	apps := payload.Get("apps")
	switch apps.Kind() {
	case value.KindNull:
	case value.KindArray:
		detail.Apps = make([]models.AppExecution, 0, apps.Len())
		for i, item := range apps.Items() {
			app, err := decodeApp(item)
			if err != nil {
				return models.RecordDetail{}, fmt.Errorf("apps[%d]: %w", i, err)
			}
			detail.Apps = append(detail.Apps, app)
		}
	default:
		return models.RecordDetail{}, fmt.Errorf("apps is a %s, expected an array", apps.Kind())
	}

	extra := map[string]value.Value{}
	for _, key := range payload.Keys() {
		if detailKeys[key] {
			continue
		}
		extra[key] = payload.Get(key)
	}
	if len(extra) > 0 {
		detail.Extra = value.Object(extra)
	}

	return detail, nil
}

func decodeApp(item value.Value) (models.AppExecution, error) {
	if item.Kind() != value.KindObject {
		return models.AppExecution{}, fmt.Errorf("app is a %s, expected an object", item.Kind())
	}

	app := models.AppExecution{
		Name:   stringField(item, "name"),
		Fields: item,
	}
	for _, key := range appRunKeys {
		if t := parseTimestamp(stringField(item, key)); !t.IsZero() {
			app.RanAt = &t
			break
		}
	}
	return app, nil
}

func stringField(v value.Value, key string) string {
	s, _ := v.Get(key).AsString()
	return s
}
