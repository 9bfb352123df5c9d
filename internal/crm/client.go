package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// requestTimeout bounds every downstream round trip. A timeout surfaces as a
// transport error, which the executor classifies as retryable.
const requestTimeout = 30 * time.Second

// errorBodyLimit caps how much of an error response body we keep for the
// error message.
const errorBodyLimit = 2048

// Lead is one CRM lead/deal row.
type Lead struct {
	ID        int64   `json:"id"`
	SourceID  string  `json:"source_id"`
	StatusID  string  `json:"status_id"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

// Totals is the aggregate block the CRM returns alongside each page.
type Totals struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Pagination is the CRM's paging envelope.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	PerPage     int  `json:"per_page"`
	Total       int  `json:"total"`
	HasNext     bool `json:"has_next"`
}

// Page is one paginated response: {data, totals, pagination}.
type Page struct {
	Data       []Lead     `json:"data"`
	Totals     Totals     `json:"totals"`
	Pagination Pagination `json:"pagination"`
}

// LeadQuery selects leads for one source over a date range. WonOnly narrows
// to closed-won statuses.
type LeadQuery struct {
	SourceID  string
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive
	WonOnly   bool
	Page      int
	PerPage   int
}

// Client talks to the CRM API. One HTTP round trip per method call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a CRM client for the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// ListLeads fetches a single page of leads matching q.
func (c *Client) ListLeads(ctx context.Context, q LeadQuery) (*Page, error) {
	params := url.Values{}
	if q.SourceID != "" {
		params.Set("filter[source_id]", q.SourceID)
	}
	if q.StartDate != "" && q.EndDate != "" {
		params.Set("filter[created_between]", q.StartDate+","+q.EndDate)
	}
	if q.WonOnly {
		params.Set("filter[won]", "1")
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	params.Set("page", strconv.Itoa(page))
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}

	var result Page
	if err := c.getJSON(ctx, "/leads?"+params.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CountLeads returns the totals block for q without pulling rows (single
// round trip with a minimal page size).
func (c *Client) CountLeads(ctx context.Context, q LeadQuery) (Totals, error) {
	q.Page = 1
	q.PerPage = 1
	p, err := c.ListLeads(ctx, q)
	if err != nil {
		return Totals{}, err
	}
	return p.Totals, nil
}

// getJSON performs one authenticated GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			apiErr.RetryAfter = d
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
