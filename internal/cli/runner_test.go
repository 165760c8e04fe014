package cli

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/reconcile"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/redis"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/syncerr"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

type fakeDriver struct {
	summary reconcile.Summary
	err     error
	runIDs  []string
	cutoffs []time.Time
}

func (f *fakeDriver) Run(ctx context.Context, cutoff time.Time) (reconcile.Summary, error) {
	f.runIDs = append(f.runIDs, appctx.GetRunID(ctx))
	f.cutoffs = append(f.cutoffs, cutoff)
	summary := f.summary
	summary.RunID = appctx.GetRunID(ctx)
	summary.Cutoff = cutoff
	return summary, f.err
}

type fakeGuard struct {
	held  bool
	calls int
}

func (g *fakeGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	g.calls++
	if g.held {
		return redis.ErrRunInProgress
	}
	return fn(ctx)
}

type notification struct {
	title   string
	message string
	success bool
	runID   string
	ctxErr  error
}

type recordingNotifier struct {
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, title, message string, success bool) {
	n.sent = append(n.sent, notification{title: title, message: message, success: success, runID: appctx.GetRunID(ctx), ctxErr: ctx.Err()})
}

type recordingRecorder struct {
	success *bool
	message string
}

func (r *recordingRecorder) RecordRun(success bool, message string, _ time.Time) {
	r.success = &success
	r.message = message
}

var runCutoff = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func TestRunnerSuccess(t *testing.T) {
	driver := &fakeDriver{summary: reconcile.Summary{Enumerated: 3, Inserted: 1, Updated: 1, Skipped: 1}}
	notifier := &recordingNotifier{}
	recorder := &recordingRecorder{}
	r := NewRunner(driver, nil, notifier, recorder, PushConfig{}, silentLogger())

	summary, err := r.Run(context.Background(), runCutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)

	require.Len(t, driver.runIDs, 1)
	assert.NotEmpty(t, driver.runIDs[0])
	assert.Equal(t, []time.Time{runCutoff}, driver.cutoffs)

	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	assert.Equal(t, successTitle, sent.title)
	assert.True(t, sent.success)
	assert.True(t, strings.HasPrefix(sent.message, "1 new records inserted, 1 records updated, 1 skipped"), sent.message)
	assert.Equal(t, driver.runIDs[0], sent.runID)

	require.NotNil(t, recorder.success)
	assert.True(t, *recorder.success)
}

func TestRunnerKeepsRunID(t *testing.T) {
	driver := &fakeDriver{}
	r := NewRunner(driver, nil, &recordingNotifier{}, nil, PushConfig{}, silentLogger())

	_, err := r.Run(appctx.SetRunID(context.Background(), "run-42"), runCutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-42"}, driver.runIDs)
}

func TestRunnerFailure(t *testing.T) {
	tests := []struct {
		name     string
		summary  reconcile.Summary
		err      error
		contains string
	}{
		{
			name:     "aborted before any work",
			err:      syncerr.NewAuthError(errors.New("401")),
			contains: "Run for records modified since 2024-06-01 aborted",
		},
		{
			name:     "aborted part way",
			summary:  reconcile.Summary{Enumerated: 10, Inserted: 4},
			err:      syncerr.NewStoreUnavailableError("insert", errors.New("connection reset")),
			contains: "Run aborted after 4 new records inserted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := &fakeDriver{summary: tt.summary, err: tt.err}
			notifier := &recordingNotifier{}
			recorder := &recordingRecorder{}
			r := NewRunner(driver, nil, notifier, recorder, PushConfig{}, silentLogger())

			_, err := r.Run(context.Background(), runCutoff)
			assert.ErrorIs(t, err, tt.err)

			require.Len(t, notifier.sent, 1)
			assert.Equal(t, failureTitle, notifier.sent[0].title)
			assert.False(t, notifier.sent[0].success)
			assert.Contains(t, notifier.sent[0].message, tt.contains)

			require.NotNil(t, recorder.success)
			assert.False(t, *recorder.success)
			assert.Equal(t, notifier.sent[0].message, recorder.message)
		})
	}
}

func TestRunnerReportsAfterCancellation(t *testing.T) {
	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	driver := &fakeDriver{summary: reconcile.Summary{Enumerated: 5, Inserted: 2}, err: context.Canceled}
	notifier := &recordingNotifier{}
	recorder := &recordingRecorder{}
	r := NewRunner(driver, nil, notifier, recorder, PushConfig{URL: gateway.URL, Job: "double-checker"}, silentLogger())

	_, err := r.Run(ctx, runCutoff)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, notifier.sent, 1)
	assert.NoError(t, notifier.sent[0].ctxErr, "notifiers get a live context")
	assert.False(t, notifier.sent[0].success)
	assert.Contains(t, notifier.sent[0].message, "Run aborted after 2 new records inserted")
	assert.NotEmpty(t, notifier.sent[0].runID)

	require.NotNil(t, recorder.success)
	assert.False(t, *recorder.success)
	assert.Equal(t, int32(1), pushes.Load())
}

func TestRunnerGuard(t *testing.T) {
	t.Run("free lock runs", func(t *testing.T) {
		driver := &fakeDriver{}
		guard := &fakeGuard{}
		r := NewRunner(driver, guard, &recordingNotifier{}, nil, PushConfig{}, silentLogger())

		_, err := r.Run(context.Background(), runCutoff)
		require.NoError(t, err)
		assert.Equal(t, 1, guard.calls)
		assert.Len(t, driver.runIDs, 1)
	})

	t.Run("held lock refuses", func(t *testing.T) {
		driver := &fakeDriver{}
		notifier := &recordingNotifier{}
		r := NewRunner(driver, &fakeGuard{held: true}, notifier, nil, PushConfig{}, silentLogger())

		_, err := r.Run(context.Background(), runCutoff)
		assert.ErrorIs(t, err, redis.ErrRunInProgress)
		assert.Empty(t, driver.runIDs)
		require.Len(t, notifier.sent, 1)
		assert.Contains(t, notifier.sent[0].message, "another run holds the lock")
	})
}

func TestRunnerPushesMetrics(t *testing.T) {
	var pushes atomic.Int32
	var path atomic.Value
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pushes.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	r := NewRunner(&fakeDriver{}, nil, &recordingNotifier{}, nil, PushConfig{URL: gateway.URL, Job: "double-checker"}, silentLogger())
	_, err := r.Run(context.Background(), runCutoff)
	require.NoError(t, err)

	assert.Equal(t, int32(1), pushes.Load())
	assert.Contains(t, path.Load(), "/metrics/job/double-checker")
}

func TestRunnerIgnoresPushFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	r := NewRunner(&fakeDriver{}, nil, &recordingNotifier{}, nil, PushConfig{URL: gateway.URL, Job: "double-checker"}, silentLogger())
	_, err := r.Run(context.Background(), runCutoff)
	assert.NoError(t, err)
}
