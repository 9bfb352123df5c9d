// Package ads provides the advertising API client used to join campaign
// spend onto CRM lead counts. The ads API has generous limits, so the client
// retries transport-level failures itself instead of going through the CRM
// scheduler.
package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/VasulenkoIllia/Google-ADS/internal/logging"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Msgf("ads retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Msgf("ads retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Spend is aggregated ad spend attributed to one lead source over a period.
type Spend struct {
	SourceID    string  `json:"source_id"`
	Cost        float64 `json:"cost"`
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
}

// Client talks to the advertising spend API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	customerID string
}

// NewClient creates an ads client. Requests are retried with backoff by the
// underlying retryable HTTP client.
func NewClient(baseURL, token, customerID string, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	retryClient.RetryMax = 5
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Client{
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		customerID: customerID,
	}
}

// SpendForSource returns the spend attributed to sourceID between startDate
// and endDate (YYYY-MM-DD, inclusive).
func (c *Client) SpendForSource(ctx context.Context, sourceID, startDate, endDate string) (*Spend, error) {
	params := url.Values{}
	params.Set("source_id", sourceID)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)

	path := fmt.Sprintf("/customers/%s/spend?%s", url.PathEscape(c.customerID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ads request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("ads api: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var spend Spend
	if err := json.NewDecoder(resp.Body).Decode(&spend); err != nil {
		return nil, fmt.Errorf("failed to decode spend response: %w", err)
	}
	return &spend, nil
}
