package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/LightningDocs/monthly-double-checker-v2/pkg/context"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/kafka"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestCard(t *testing.T) {
	raw, err := json.Marshal(Card("Sync finished", "3 new records inserted", true))
	require.NoError(t, err)

	expected := `{
		"type": "message",
		"attachments": [{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": {
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type": "AdaptiveCard",
				"version": "1.4",
				"body": [
					{"type": "TextBlock", "text": "Sync finished", "weight": "Bolder", "size": "Medium", "color": "good"},
					{"type": "TextBlock", "text": "3 new records inserted", "wrap": true}
				]
			}
		}]
	}`
	assert.JSONEq(t, expected, string(raw))

	failed := Card("Sync failed", "boom", false)
	assert.Equal(t, "attention", failed.Attachments[0].Content.Body[0].Color)
}

func TestTeamsNotify(t *testing.T) {
	var received CardMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		if received.Attachments[0].Content.Body[0].Text == "reject" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.NewClient(httpclient.DefaultConfig(), silentLogger())
	teams, err := NewTeams(client, server.URL, silentLogger())
	require.NoError(t, err)

	require.NoError(t, teams.Notify(context.Background(), "Sync finished", "all good", true))
	assert.Equal(t, "all good", received.Attachments[0].Content.Body[1].Text)

	assert.Error(t, teams.Notify(context.Background(), "reject", "bad", false))

	_, err = NewTeams(client, "", silentLogger())
	assert.ErrorIs(t, err, ErrMissingWebhook)
}

type capturePublisher struct {
	keys   []string
	events []*kafka.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, key string, evt *kafka.Event) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	p.events = append(p.events, evt)
	return nil
}

func TestKafkaNotifier(t *testing.T) {
	pub := &capturePublisher{}
	k := NewKafka(pub, silentLogger())
	ctx := appctx.SetRunID(context.Background(), "run-1")

	require.NoError(t, k.Notify(ctx, "Sync failed", "auth rejected", false))
	responsible := "Loan"
	k.RecordInserted(ctx, models.RecordDocument{
		RecordID:       "abc",
		Catalog:        "Transactional",
		ResponsibleApp: &responsible,
		Timeline:       []models.RecordDetail{{ID: "abc"}},
		Billing:        []models.BillingEntry{{App: "Loan"}},
	})
	k.RecordUpdated(ctx, models.RecordDocument{RecordID: "def"})

	require.Len(t, pub.events, 3)
	assert.Equal(t, []string{"run-1", "abc", "def"}, pub.keys)
	assert.Equal(t, EventRunFailed, pub.events[0].Type)
	assert.Equal(t, "run-1", pub.events[0].RunID)
	assert.Equal(t, EventRecordInserted, pub.events[1].Type)
	assert.Equal(t, []string{"Loan"}, pub.events[1].Payload.(RecordPayload).BillingApps)
	assert.Equal(t, EventRecordUpdated, pub.events[2].Type)
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(ctx context.Context, title, message string, success bool) error {
	s.calls++
	return s.err
}

func TestMultiSwallowsFailures(t *testing.T) {
	failing := &stubNotifier{name: "failing", err: errors.New("down")}
	working := &stubNotifier{name: "working"}
	m := NewMulti(silentLogger(), failing, nil, working)

	assert.Equal(t, 2, m.Len())
	m.Notify(context.Background(), "t", "m", true)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}
