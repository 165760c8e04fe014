package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
)

var ErrMissingWebhook = errors.New("teams webhook url is required")

// Teams posts adaptive cards to a Microsoft Teams incoming webhook
type Teams struct {
	client     *httpclient.Client
	webhookURL string
	logger     ectologger.Logger
}

// NewTeams creates a Teams notifier
func NewTeams(client *httpclient.Client, webhookURL string, logger ectologger.Logger) (*Teams, error) {
	if webhookURL == "" {
		return nil, ErrMissingWebhook
	}
	return &Teams{
		client:     client,
		webhookURL: webhookURL,
		logger:     logger,
	}, nil
}

func (t *Teams) Name() string { return "teams" }

// Notify posts a card with a coloured title and the wrapped message
func (t *Teams) Notify(ctx context.Context, title, message string, success bool) error {
	resp, err := t.client.PostJSON(ctx, t.webhookURL, Card(title, message, success), nil)
	if err != nil {
		return fmt.Errorf("failed to post teams message: %w", err)
	}
	if !resp.IsSuccess() {
		return httperror.NewHTTPErrorf(resp.StatusCode, "teams webhook returned %d: %s", resp.StatusCode, string(resp.Body))
	}

	t.logger.WithContext(ctx).WithField("title", title).Debug("Sent teams notification")
	return nil
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type adaptiveCard struct {
	Schema  string      `json:"$schema"`
	Type    string      `json:"type"`
	Version string      `json:"version"`
	Body    []textBlock `json:"body"`
}

type attachment struct {
	ContentType string       `json:"contentType"`
	Content     adaptiveCard `json:"content"`
}

// CardMessage is the webhook payload carrying one adaptive card
type CardMessage struct {
	Type        string       `json:"type"`
	Attachments []attachment `json:"attachments"`
}

// Card builds the webhook payload for a notification
func Card(title, message string, success bool) CardMessage {
	color := "attention"
	if success {
		color = "good"
	}
	return CardMessage{
		Type: "message",
		Attachments: []attachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: adaptiveCard{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []textBlock{
					{Type: "TextBlock", Text: title, Weight: "Bolder", Size: "Medium", Color: color},
					{Type: "TextBlock", Text: message, Wrap: true},
				},
			},
		}},
	}
}
