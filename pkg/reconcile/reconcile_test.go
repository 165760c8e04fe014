package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

func TestIndexLastWriteWins(t *testing.T) {
	index := NewIndex()

	_, dup := index.Put(models.RecordMetadata{ID: "A", Catalog: "One"})
	assert.False(t, dup)
	index.Put(models.RecordMetadata{ID: "B", Catalog: "One"})

	previous, dup := index.Put(models.RecordMetadata{ID: "A", Catalog: "Two"})
	assert.True(t, dup)
	assert.Equal(t, "One", previous.Catalog)

	got, ok := index.Get("A")
	require.True(t, ok)
	assert.Equal(t, "Two", got.Catalog)
	assert.Equal(t, []string{"A", "B"}, index.IDs())
	assert.Equal(t, 2, index.Len())

	fresh, known := index.Split(map[string]bool{"B": true})
	assert.Equal(t, []string{"A"}, fresh)
	assert.Equal(t, []string{"B"}, known)
}

func TestEnumeratorFilter(t *testing.T) {
	e := NewEnumerator(newFakeSource(), silentLogger(), models.RecordStatusOk, 0)
	filter := e.Filter(time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC))

	encoded, err := filter.Encode()
	require.NoError(t, err)
	assert.Equal(t, `{"lastmod":{"c":"after","v":"2024-06-01T00:00"}}`, encoded)
	assert.Equal(t, models.RecordStatusOk, filter.Status)
	assert.Equal(t, DefaultPageSize, e.pageSize)
}

func TestEnumeratorDiscardsPartialListing(t *testing.T) {
	source := &flakySource{fakeSource: newFakeSource("Transactional"), failAt: 2}
	for _, id := range []string{"A", "B", "C"} {
		source.add("Transactional", meta(id, storedAt), detail(id, "Loan"))
	}
	e := NewEnumerator(source, silentLogger(), models.RecordStatusOk, 2)

	records, err := e.ListRecords(context.Background(), "Transactional", cutoff)
	assert.Error(t, err)
	assert.Nil(t, records)
}

type flakySource struct {
	*fakeSource
	failAt int
}

func (s *flakySource) ListRecords(ctx context.Context, catalog string, filter models.RecordFilter, skip, limit int) ([]models.RecordMetadata, error) {
	if skip >= s.failAt {
		return nil, errors.New("connection reset")
	}
	return s.fakeSource.ListRecords(ctx, catalog, filter, skip, limit)
}

func TestSummaryMessage(t *testing.T) {
	s := Summary{
		Cutoff:     cutoff,
		Enumerated: 10,
		Inserted:   3,
		Updated:    2,
		Skipped:    4,
		Warned:     1,
		Failed:     1,
		Duration:   90 * time.Second,
	}
	assert.Equal(t,
		"3 new records inserted, 2 records updated, 4 skipped, 1 warnings, 1 failed (10 records modified since 2024-06-01, took 1m30s)",
		s.Message())
	assert.Equal(t, 3, s.Fields()["inserted"])
}

func TestForEach(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f"}

	t.Run("visits every id once", func(t *testing.T) {
		for _, workers := range []int{1, 3} {
			var seen sync.Map
			var calls atomic.Int32
			err := forEach(context.Background(), ids, workers, func(ctx context.Context, id string) error {
				calls.Add(1)
				_, loaded := seen.LoadOrStore(id, true)
				assert.False(t, loaded)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, int32(len(ids)), calls.Load())
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		boom := errors.New("boom")
		for _, workers := range []int{1, 3} {
			err := forEach(context.Background(), ids, workers, func(ctx context.Context, id string) error {
				if id == "b" {
					return boom
				}
				return nil
			})
			assert.ErrorIs(t, err, boom)
		}
	})

	t.Run("honours cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := forEach(ctx, ids, 1, func(ctx context.Context, id string) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
