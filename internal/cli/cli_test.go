package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/health"
)

func TestDefaultCutoff(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"mid month", time.Date(2024, 4, 12, 15, 30, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"january rolls back a year", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"first of month", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"local time is converted", time.Date(2024, 5, 1, 1, 0, 0, 0, time.FixedZone("EST", -5*3600)), time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultCutoff(tt.now))
		})
	}
}

func TestParseCutoff(t *testing.T) {
	now := time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC)

	cutoff, err := ParseCutoff("2024-06-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), cutoff)

	cutoff, err = ParseCutoff("", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), cutoff)

	for _, bad := range []string{"2024-13-01", "06/01/2024", "2024-6-1", "yesterday"} {
		_, err := ParseCutoff(bad, now)
		assert.ErrorContains(t, err, "YYYY-MM-DD", bad)
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitUsage, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitUsage, "bad flag"))))

	cause := errors.New("connection refused")
	err := WrapExitError(ExitFailure, "startup failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "startup failed: connection refused", err.Error())
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.ExecuteContext(context.Background())
}

func TestSyncRejectsBadDateBeforeIO(t *testing.T) {
	// no credentials are set, so getting past date validation would fail config loading instead
	err := execute(t, "sync", "--date", "2024-02-30")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --date")
}

func TestSyncRequiresConfiguration(t *testing.T) {
	t.Setenv("KEY", "")
	t.Setenv("SECRET", "")
	t.Setenv("TENANCY", "")

	err := execute(t, "sync", "--date", "2024-06-01")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, GetExitCode(err))
	assert.Contains(t, err.Error(), "KEY (required)")
}

func TestSyncRejectsArguments(t *testing.T) {
	err := execute(t, "sync", "extra")
	assert.Error(t, err)
}

func TestNotifyCommand(t *testing.T) {
	var got map[string]any
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()
	t.Setenv("TEAMS_WEBHOOK_URL", server.URL)

	require.NoError(t, execute(t, "notify", "Double checker", "Nightly run skipped", "false"))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "message", got["type"])

	t.Run("bad success flag", func(t *testing.T) {
		err := execute(t, "notify", "Title", "Message", "maybe")
		assert.Equal(t, ExitUsage, GetExitCode(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing arguments", func(t *testing.T) {
		assert.Error(t, execute(t, "notify", "Title"))
	})

	t.Run("webhook rejects", func(t *testing.T) {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer failing.Close()
		t.Setenv("TEAMS_WEBHOOK_URL", failing.URL)

		err := execute(t, "notify", "Title", "Message", "true")
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

func TestServerRoutes(t *testing.T) {
	checker := health.NewChecker("test")
	checker.SetReady(true)
	e := newServer(checker)

	for _, path := range []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
