// Package knackly is the client for the Knackly document automation API.
package knackly

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/httpclient"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/metrics"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/models"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/syncerr"
	"github.com/LightningDocs/monthly-double-checker-v2/pkg/tracing"
)

var (
	// ErrTokenMissing is returned when the login response carries no token
	ErrTokenMissing = errors.New("login response did not include a token")
)

const (
	// DefaultBaseURL is the public Knackly API host
	DefaultBaseURL = "https://api.knackly.io"

	// DefaultRetryDelay is the first backoff step when retries are enabled
	DefaultRetryDelay = 500 * time.Millisecond
)

// Config holds the Knackly connection settings
type Config struct {
	BaseURL    string
	Tenancy    string
	KeyID      string
	Secret     string
	MaxRetries int
	RetryDelay time.Duration
}

// Client talks to one Knackly tenancy. The bearer token is acquired once by NewClient and
// reused for every call. A 401/403 later on is fatal, the token is never refreshed.
type Client struct {
	http       *httpclient.Client
	logger     ectologger.Logger
	baseURL    string
	token      string
	maxRetries int
	retryDelay time.Duration
}

// NewClient logs in and returns a ready client
func NewClient(ctx context.Context, cfg Config, httpClient *httpclient.Client, logger ectologger.Logger) (*Client, error) {
	ctx, span := tracing.StartSpan(ctx, "knackly.NewClient")
	defer span.End()

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	c := &Client{
		http:       httpClient,
		logger:     logger,
		baseURL:    fmt.Sprintf("%s/%s/api/v1", baseURL, url.PathEscape(cfg.Tenancy)),
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
	}

	token, err := c.login(ctx, cfg.KeyID, cfg.Secret)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	c.token = token

	logger.WithContext(ctx).WithField("tenancy", cfg.Tenancy).Info("Successfully connected to Knackly")
	return c, nil
}

type loginResponse struct {
	Token string `json:"token"`
}

func (c *Client) login(ctx context.Context, keyID, secret string) (string, error) {
	form := url.Values{}
	form.Set("KeyID", keyID)
	form.Set("Secret", secret)

	start := time.Now()
	resp, err := c.http.PostForm(ctx, c.baseURL+"/auth/login", form, nil)
	if err != nil {
		metrics.RecordSourceRequest("login", "error", time.Since(start).Seconds())
		return "", fmt.Errorf("failed to log in to Knackly: %w", err)
	}
	metrics.RecordSourceRequest("login", strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if !resp.IsSuccess() {
		return "", syncerr.NewAuthError(httperror.NewHTTPErrorf(resp.StatusCode, "knackly login rejected with status %d", resp.StatusCode))
	}

	var body loginResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return "", syncerr.NewAuthError(err)
	}
	if body.Token == "" {
		return "", syncerr.NewAuthError(ErrTokenMissing)
	}
	return body.Token, nil
}

// ListPartitions returns the names of the catalogs visible to the API key. Catalogs without
// a name are ignored.
func (c *Client) ListPartitions(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "knackly.ListPartitions")
	defer span.End()

	var catalogs []catalogWire
	if err := c.getJSON(ctx, "list_catalogs", c.baseURL+"/catalogs", "", "", &catalogs); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	names := make([]string, 0, len(catalogs))
	for _, catalog := range catalogs {
		if catalog.Name == "" {
			continue
		}
		names = append(names, catalog.Name)
	}
	return names, nil
}

// ListRecords returns one page of record metadata in a catalog
func (c *Client) ListRecords(ctx context.Context, catalog string, filter models.RecordFilter, skip, limit int) ([]models.RecordMetadata, error) {
	ctx, span := tracing.StartSpan(ctx, "knackly.ListRecords")
	defer span.End()

	query := url.Values{}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	query.Set("skip", strconv.Itoa(skip))
	query.Set("limit", strconv.Itoa(limit))
	encoded, err := filter.Encode()
	if err != nil {
		return nil, err
	}
	if encoded != "" {
		query.Set("f", encoded)
	}

	reqURL := fmt.Sprintf("%s/catalogs/%s/items?%s", c.baseURL, url.PathEscape(catalog), query.Encode())

	var items []recordMetadataWire
	if err := c.getJSON(ctx, "list_records", reqURL, "", catalog, &items); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	records := make([]models.RecordMetadata, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		meta, warning := item.toModel(catalog)
		if warning != nil {
			c.logger.WithContext(ctx).WithError(warning).WithFields(map[string]any{
				"record_id": item.ID,
				"catalog":   catalog,
			}).Warn("Record has an unreadable modification time and will not be updated")
		}
		records = append(records, meta)
	}
	return records, nil
}

// FetchDetail returns the full record
func (c *Client) FetchDetail(ctx context.Context, id, catalog string) (models.RecordDetail, error) {
	ctx, span := tracing.StartSpan(ctx, "knackly.FetchDetail")
	defer span.End()

	reqURL := fmt.Sprintf("%s/catalogs/%s/items/%s", c.baseURL, url.PathEscape(catalog), url.PathEscape(id))

	var raw map[string]any
	if err := c.getJSON(ctx, "fetch_detail", reqURL, id, catalog, &raw); err != nil {
		tracing.RecordError(span, err)
		return models.RecordDetail{}, err
	}

	detail, err := decodeDetail(raw, catalog)
	if err != nil {
		err = &syncerr.TransientFetchError{RecordID: id, Catalog: catalog, Err: err}
		tracing.RecordError(span, err)
		return models.RecordDetail{}, err
	}
	if detail.ID == "" {
		detail.ID = id
	}
	if modified, ok := raw["lastModified"].(string); ok {
		if warning := timestampWarning(id, "lastModified", modified, detail.LastModified); warning != nil {
			c.logger.WithContext(ctx).WithError(warning).WithFields(map[string]any{
				"record_id": id,
				"catalog":   catalog,
			}).Warn("Record detail has an unreadable modification time")
		}
	}
	return detail, nil
}

// getJSON performs an authorized GET, classifies failures and decodes the body into out.
// Transient failures are retried when retries are enabled.
func (c *Client) getJSON(ctx context.Context, operation, reqURL, recordID, catalog string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.WithContext(ctx).WithError(lastErr).WithFields(map[string]any{
				"operation": operation,
				"attempt":   attempt,
			}).Warnf("Retrying %s in %s", operation, delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.getOnce(ctx, operation, reqURL, recordID, catalog, out)
		if lastErr == nil || !errors.Is(lastErr, syncerr.ErrTransient) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, operation, reqURL, recordID, catalog string, out any) error {
	start := time.Now()
	resp, err := c.http.Get(ctx, reqURL, map[string]string{
		"Authorization": "Bearer " + c.token,
		"Accept":        "application/json",
	})
	if err != nil {
		metrics.RecordSourceRequest(operation, "error", time.Since(start).Seconds())
		return syncerr.FromHTTP(ctx, err, recordID, catalog)
	}
	metrics.RecordSourceRequest(operation, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if !resp.IsSuccess() {
		httpErr := httperror.NewHTTPErrorf(resp.StatusCode, "knackly %s returned %d: %s", operation, resp.StatusCode, truncate(string(resp.Body), 200))
		return syncerr.FromHTTP(ctx, httpErr, recordID, catalog)
	}

	if err := resp.DecodeJSON(out); err != nil {
		return &syncerr.TransientFetchError{RecordID: recordID, Catalog: catalog, Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
