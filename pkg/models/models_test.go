package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFilterEncode(t *testing.T) {
	start := time.Date(2024, 7, 2, 11, 9, 0, 0, time.UTC)
	end := time.Date(2024, 7, 3, 11, 9, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   RecordFilter
		expected string
	}{
		{"no filter", RecordFilter{Status: RecordStatusOk}, ""},
		{"after", RecordFilter{LastModified: ModifiedAfter(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))}, `{"lastmod":{"c":"after","v":"2024-07-01T00:00"}}`},
		{"before", RecordFilter{LastModified: ModifiedBefore(time.Date(2024, 7, 3, 11, 0, 0, 0, time.UTC))}, `{"lastmod":{"c":"before","v":"2024-07-03T11:00"}}`},
		{"range", RecordFilter{LastModified: ModifiedBetween(start, end)}, `{"lastmod":{"c":"range","dateStart":"2024-07-02T11:09","dateEnd":"2024-07-03T11:09"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.filter.Encode()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRecordFilterEncodeErrors(t *testing.T) {
	start := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)

	_, err := RecordFilter{LastModified: ModifiedBetween(start, start.Add(-time.Hour))}.Encode()
	assert.Error(t, err)

	_, err = RecordFilter{LastModified: &LastModifiedFilter{Mode: "sometime"}}.Encode()
	assert.Error(t, err)
}

func TestRecordDetailClone(t *testing.T) {
	ranAt := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	owner := "Deed"
	d := RecordDetail{
		ID:             "rec-1",
		Apps:           []AppExecution{{Name: "Deed", RanAt: &ranAt}},
		ResponsibleApp: &owner,
	}

	c := d.Clone()
	c.Apps[0].Name = "Mortgage"
	*c.Apps[0].RanAt = ranAt.Add(time.Hour)
	*c.ResponsibleApp = "Mortgage"

	assert.Equal(t, "Deed", d.Apps[0].Name)
	assert.Equal(t, ranAt, *d.Apps[0].RanAt)
	assert.Equal(t, "Deed", owner)
}

func TestAppNames(t *testing.T) {
	d := RecordDetail{Apps: []AppExecution{{Name: "Deed"}, {Name: "Note"}, {Name: "Deed"}}}
	assert.Equal(t, []string{"Deed", "Note"}, d.AppNames())
	assert.Empty(t, RecordDetail{}.AppNames())
}

func TestRecordDocumentLatest(t *testing.T) {
	_, ok := RecordDocument{}.Latest()
	assert.False(t, ok)

	doc := RecordDocument{Timeline: []RecordDetail{{ID: "a", LastRunBy: "first"}, {ID: "a", LastRunBy: "second"}}}
	latest, ok := doc.Latest()
	require.True(t, ok)
	assert.Equal(t, "second", latest.LastRunBy)
}
